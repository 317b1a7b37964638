package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为当前目录下的 docs/，Writer 输出到 ./out 并保留目录层级；
// - Handler 使用 frontmatter；
// - 选项包含全部键，值为安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:     []string{"docs"},
		Read:       d.Read,
		DataSuffix: d.DataSuffix,
		Logging:    Logging{Level: "info", Dir: "logs"},
		Limits:     Limits{RPM: 0, Burst: 1},
		Components: d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "include": ["*.md", "*.markdown", "*.txt"]
}`)
	cfg.Options.Handler = json.RawMessage(`{
  "strip": false,
  "delimiter": "---"
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": false,
  "base_dir": "docs",
  "skip_existing": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
