package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "FILEDATA_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Read:       "buffer",
		DataSuffix: ".data.json",
		Logging:    Logging{Level: "info"},
		Components: Components{
			Reader:  "fs",
			Handler: "frontmatter",
			Writer:  "fs",
		},
	}
}

// Load 从文件路径或原始内容解析 Config（严格拒绝未知字段）。
// 扩展名为 .yaml/.yml 的文件按 YAML 解析；raw 以 '{' 开头视为 JSON，否则按 YAML。
func Load(path string, raw []byte) (Config, error) {
	switch {
	case len(raw) > 0:
		if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
			return LoadJSON("", raw)
		}
		return LoadYAML("", raw)
	case path != "":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return LoadYAML(path, nil)
		}
		return LoadJSON(path, nil)
	}
	return Config{}, errors.New("no config source provided")
}

// LoadJSON 从文件路径或原始 JSON 解析 Config。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 解析 YAML 配置：先转为通用结构再编码为 JSON，
// 以复用 JSON 的 snake_case 标签与严格解码（Options 子树保持原样 JSON）。
func LoadYAML(path string, raw []byte) (Config, error) {
	if len(raw) == 0 {
		if path == "" {
			return Config{}, errors.New("no config source provided")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		raw = b
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return Config{}, nil
	}
	if _, ok := doc.(map[string]any); !ok {
		return Config{}, fmt.Errorf("yaml: top level must be a mapping, got %T", doc)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Read); s != "" {
		out.Read = s
	}
	if s := strings.TrimSpace(over.DataSuffix); s != "" {
		out.DataSuffix = s
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	// RPM 的 0 具有语义（不限流），-1 视为未覆盖。
	if over.Limits.RPM >= 0 {
		out.Limits.RPM = over.Limits.RPM
	}
	if over.Limits.Burst > 0 {
		out.Limits.Burst = over.Limits.Burst
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Handler != "" {
		out.Components.Handler = over.Components.Handler
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Handler) > 0 {
		out.Options.Handler = cloneRaw(over.Options.Handler)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// Unset 返回一个“什么都不覆盖”的覆盖层。
func Unset() Config {
	return Config{Limits: Limits{RPM: -1}}
}

// envVars: FILEDATA_ 前缀下的覆盖项（前缀由解析选项统一加上）。
// 数值以字符串承载，以便区分“未设置/空值”与显式的 0。
type envVars struct {
	Inputs     string `env:"INPUTS"`
	Read       string `env:"READ"`
	DataSuffix string `env:"DATA_SUFFIX"`
	LogLevel   string `env:"LOG_LEVEL"`
	LogDir     string `env:"LOG_DIR"`
	RPM        string `env:"LIMITS_RPM"`
	Burst      string `env:"LIMITS_BURST"`

	Reader  string `env:"COMPONENTS_READER"`
	Handler string `env:"COMPONENTS_HANDLER"`
	Writer  string `env:"COMPONENTS_WRITER"`

	ReaderJSON  string `env:"OPTIONS_READER_JSON"`
	HandlerJSON string `env:"OPTIONS_HANDLER_JSON"`
	WriterJSON  string `env:"OPTIONS_WRITER_JSON"`
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析 envVars 中的键集合）。
// 空值视为未设置；数值非法时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	over := Unset()
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			m[k] = v
		}
	}
	var ev envVars
	if err := env.ParseWithOptions(&ev, env.Options{Prefix: EnvPrefix, Environment: m}); err != nil {
		return over, fmt.Errorf("env: %w", err)
	}

	over.Inputs = splitComma(ev.Inputs)
	over.Read = strings.TrimSpace(ev.Read)
	over.DataSuffix = strings.TrimSpace(ev.DataSuffix)
	over.Logging.Level = strings.TrimSpace(ev.LogLevel)
	over.Logging.Dir = strings.TrimSpace(ev.LogDir)
	if strings.TrimSpace(ev.RPM) != "" {
		v, err := atoi(ev.RPM)
		if err != nil {
			return over, fmt.Errorf("env %sLIMITS_RPM: %w", EnvPrefix, err)
		}
		over.Limits.RPM = v
	}
	if strings.TrimSpace(ev.Burst) != "" {
		v, err := atoi(ev.Burst)
		if err != nil {
			return over, fmt.Errorf("env %sLIMITS_BURST: %w", EnvPrefix, err)
		}
		over.Limits.Burst = v
	}
	over.Components.Reader = strings.TrimSpace(ev.Reader)
	over.Components.Handler = strings.TrimSpace(ev.Handler)
	over.Components.Writer = strings.TrimSpace(ev.Writer)
	over.Options.Reader = rawOrNil(ev.ReaderJSON)
	over.Options.Handler = rawOrNil(ev.HandlerJSON)
	over.Options.Writer = rawOrNil(ev.WriterJSON)
	return over, nil
}

// 空值视为未设置，避免清空配置文件中的 Options。
func rawOrNil(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.RawMessage(s)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
