package static

import (
	"fmt"

	"filedata/pkg/contract"
)

// Options 为 static Handler 的配置。
type Options struct {
	// Data: 附加到每个文件的静态数据（任意 JSON 值，不可为 null）。
	Data any `json:"data"`
}

// New 以静态数据构造 value 约定的 Handler。
// 所有文件共享同一份 Data；缺少 data 视为未提供 Handler。
func New(opts *Options) (contract.Handler, error) {
	if opts == nil || opts.Data == nil {
		return contract.Handler{}, fmt.Errorf("static: %w", contract.ErrNoHandler)
	}
	return contract.Value(opts.Data), nil
}
