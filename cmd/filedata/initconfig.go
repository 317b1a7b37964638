package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "filedata/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write config and .env templates into dir (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			name := "config.json"
			if asYAML {
				name = "config.yaml"
			}
			cfgPath := filepath.Join(dir, name)
			wrote, err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig(), asYAML)
			if err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			out := cmd.OutOrStdout()
			if wrote {
				fmt.Fprintf(out, "已生成 %s\n", cfgPath)
			} else {
				fmt.Fprintf(out, "已存在，跳过 %s\n", cfgPath)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "生成 config.yaml 而非 config.json")
	return cmd
}

// writeConfig 写出配置模板；目标已存在时不覆盖并返回 false。
func writeConfig(path string, c cfgpkg.Config, asYAML bool) (bool, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, err
	}
	if asYAML {
		// 经通用结构转换，Options 子树展开为 YAML 映射
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return false, err
		}
		if b, err = yaml.Marshal(doc); err != nil {
			return false, err
		}
	} else {
		b = append(b, '\n')
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# filedata .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	p := cfgpkg.EnvPrefix
	for _, k := range []string{"CONFIG_FILE", "CONFIG_JSON"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "READ", "DATA_SUFFIX", "LOG_LEVEL", "LOG_DIR", "LIMITS_RPM", "LIMITS_BURST"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"READER", "HANDLER", "WRITER"} {
		b.WriteString(p + "COMPONENTS_" + k + "=\n")
	}
	for _, k := range []string{"READER", "HANDLER", "WRITER"} {
		b.WriteString(p + "OPTIONS_" + k + "_JSON=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
