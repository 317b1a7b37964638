package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// Read: 读取模式 buffer|stream|none。
	Read string `json:"read"`
	// DataSuffix: 数据边车后缀，默认 ".data.json"。
	DataSuffix string  `json:"data_suffix"`
	Logging    Logging `json:"logging"`
	Limits     Limits  `json:"limits"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；目录为空时使用 ./logs。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader  string `json:"reader"`
	Handler string `json:"handler"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader  json.RawMessage `json:"reader"`
	Handler json.RawMessage `json:"handler"`
	Writer  json.RawMessage `json:"writer"`
}

// Limits: Handler 调用限流（仅承载；执行位于 rate.Gate）。
// RPM 为 0 表示不限流；-1 仅用于覆盖层，表示“未设置”。
type Limits struct {
	RPM   int `json:"rpm"`
	Burst int `json:"burst"`
}
