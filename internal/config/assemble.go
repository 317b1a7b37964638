package config

import (
	"errors"
	"fmt"
	"strings"

	"filedata/internal/pipeline"
	"filedata/internal/rate"
	"filedata/pkg/contract"
	"filedata/pkg/registry"
)

// ErrConfig 标记配置错误（CLI 映射为退出码 3）。
var ErrConfig = errors.New("config")

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, a...))
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return invalid("inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return invalid("input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other roots")
	}
	switch pipeline.ReadMode(effName(cfg.Read, Defaults().Read)) {
	case pipeline.ReadBuffer, pipeline.ReadStream, pipeline.ReadNone:
	default:
		return invalid("read %q must be buffer|stream|none", cfg.Read)
	}
	if strings.ContainsAny(cfg.DataSuffix, `/\`) {
		return invalid("data_suffix %q must not contain path separators", cfg.DataSuffix)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level %q must be debug|info|warn|error", cfg.Logging.Level)
	}
	if cfg.Limits.RPM < 0 {
		return invalid("limits.rpm must be >= 0")
	}
	if cfg.Limits.Burst < 0 {
		return invalid("limits.burst must be >= 0")
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Handler, d.Handler); registry.Handler[name] == nil {
		return invalid("handler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含按 Handler 名分组的限流 Gate）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// 工厂返回的选项错误同样包装为 ErrConfig。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	hn := effName(cfg.Components.Handler, d.Components.Handler)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: reader %s: %w", ErrConfig, rn, err)
	}
	h, err := registry.Handler[hn](cfg.Options.Handler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: handler %s: %w", ErrConfig, hn, err)
	}
	if h.IsZero() {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: handler %s: %w", ErrConfig, hn, contract.ErrNoHandler)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("%w: writer %s: %w", ErrConfig, wn, err)
	}

	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Read:        pipeline.ReadMode(effName(cfg.Read, d.Read)),
		DataSuffix:  effName(cfg.DataSuffix, d.DataSuffix),
		HandlerName: hn,
	}
	// 限流 Gate：仅在配置了 RPM 时启用；远端 Handler 按凭据或主机分组。
	if cfg.Limits.RPM > 0 {
		key := rate.DeriveKey(hn, cfg.Options.Handler)
		set.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{
			key: {RPM: cfg.Limits.RPM, Burst: cfg.Limits.Burst},
		}, nil)
		set.GateKey = key
	}
	return pipeline.Components{Reader: r, Handler: h, Writer: w}, set, nil
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
