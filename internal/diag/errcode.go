package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"filedata/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeConfig      Code = "config"
	CodeUnsupported Code = "unsupported"
	CodeHandler     Code = "handler"
	CodeInvariant   Code = "invariant"
	CodeCancel      Code = "cancel"
	CodeIO          Code = "io"
	CodeNetwork     Code = "network"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrNoHandler) {
		return CodeConfig
	}
	if errors.Is(err, contract.ErrStreamUnsupported) {
		return CodeUnsupported
	}
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O 判定先于 handler：sidecar 等 Handler 的读文件错误归为 io
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	// 其余经 PluginError 上报的均为 Handler 自身错误（含 panic）
	var pe *contract.PluginError
	if errors.Is(err, contract.ErrHandlerPanic) || errors.As(err, &pe) {
		return CodeHandler
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
