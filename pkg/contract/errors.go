package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrNoHandler: 构造 attach 阶段时未提供 Handler（配置错误，禁止使用）。
	ErrNoHandler = errors.New("no data supplied")
	// ErrStreamUnsupported: 文件内容为打开的流；Handler 约定要求完整内容。
	ErrStreamUnsupported = errors.New("stream content is not supported")
	// ErrHandlerPanic: Handler 调用期间发生 panic（同步抛出）。
	ErrHandlerPanic = errors.New("handler panicked")
	// ErrInvalidInput: 输入/选项非法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)

// PluginError: 阶段级错误事件载体。Err 保持 Handler 原始错误，不做重新解释。
type PluginError struct {
	Plugin string
	Err    error
}

func (e *PluginError) Error() string {
	if e.Err == nil {
		return e.Plugin
	}
	return e.Plugin + ": " + e.Err.Error()
}

func (e *PluginError) Unwrap() error { return e.Err }

// NewPluginError 构造 PluginError。
func NewPluginError(plugin string, err error) *PluginError {
	return &PluginError{Plugin: plugin, Err: err}
}

// PanicError 将 recover() 的值转换为错误；值本身为 error 时保留以便 errors.Is/As。
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrHandlerPanic, r)
}
