package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "filedata/internal/config"
	"filedata/internal/diag"
	"filedata/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK     = 0
	exitFailed = 1 // 运行失败或存在单文件错误
	exitConfig = 3 // 配置/装配错误
)

// exitError 携带退出码的错误。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, a ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute 运行命令树并映射退出码。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	// 旗标解析等 cobra 错误
	fmt.Fprintln(stderr, err)
	return exitConfig
}

// rootFlags: 根命令旗标。
type rootFlags struct {
	config   string
	handler  string
	read     string
	logLevel string
	rpm      int
	status   bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:           "filedata [roots...]",
		Short:         "attach handler data to files and write it next to their contents",
		Long:          "读取文件（或 '-' 表示 STDIN），按所选 Handler 计算数据并附加到文件，写出内容与 <id>.data.json 边车。",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, &f, args)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	fs.StringVar(&f.handler, "handler", "", "Handler 名称（覆盖配置），见 `filedata handlers`")
	fs.StringVar(&f.read, "read", "", "读取模式 buffer|stream|none（覆盖配置）")
	fs.StringVar(&f.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	fs.IntVar(&f.rpm, "rpm", 0, "每分钟 Handler 调用上限（覆盖配置；0 表示不限流）")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	cmd.AddCommand(newInitConfigCmd(), newHandlersCmd())
	return cmd
}

func runRoot(cmd *cobra.Command, f *rootFlags, roots []string) error {
	start := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}

	cfg, err := resolveConfig(f, cmd.Flags(), roots)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		dumpConfig(stderr, cfg)
		return fail(exitConfig, "配置校验失败: %w", err)
	}

	logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "preflight failed", &start)
		return fail(exitConfig, "输出目录不可写或无法创建: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.CodeConfig), "assemble failed", &start)
		return fail(exitConfig, "装配失败: %w", err)
	}

	logger.Debug("config", "effective", "", map[string]string{
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"read":         string(set.Read),
		"data_suffix":  set.DataSuffix,
		"reader":       cfg.Components.Reader,
		"handler":      set.HandlerName,
		"writer":       cfg.Components.Writer,
		"rpm":          fmt.Sprintf("%d", cfg.Limits.RPM),
	})

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	diag.SetTerminal(diag.NewTerminal(stderr, f.status))
	defer diag.SetTerminal(nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	res, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		return fail(exitFailed, "运行失败: %w", err)
	}
	if err := renderSummary(stdout, set.HandlerName, res); err != nil {
		fmt.Fprintf(stderr, "提示：汇总输出失败：%v\n", err)
	}
	if !res.OK() {
		for _, e := range res.Errors {
			fmt.Fprintf(stderr, "[error] %v\n", e)
		}
		return fail(exitFailed, "%d 个文件处理失败", len(res.Errors))
	}
	return nil
}

// resolveConfig 按优先级合并：默认 < 文件/FILEDATA_CONFIG_JSON < ENV < CLI。
func resolveConfig(f *rootFlags, fs *pflag.FlagSet, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	var raw []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); strings.TrimSpace(s) != "" {
		raw = []byte(s)
	}
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" && len(raw) == 0 {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)
	return cfgpkg.Merge(cfg, flagOverlay(f, fs, roots)), nil
}

// flagOverlay 仅收集显式设置过的旗标，避免旗标默认值覆盖配置。
func flagOverlay(f *rootFlags, fs *pflag.FlagSet, roots []string) cfgpkg.Config {
	over := cfgpkg.Unset()
	if len(roots) > 0 {
		over.Inputs = roots
	}
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "handler":
			over.Components.Handler = f.handler
		case "read":
			over.Read = f.read
		case "log-level":
			over.Logging.Level = f.logLevel
		case "rpm":
			over.Limits.RPM = f.rpm
		}
	})
	return over
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 目录存在则尝试创建并删除临时文件；不存在则检查父目录。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 交给装配阶段按实现自行报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
