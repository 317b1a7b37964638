package flaky

import (
	"errors"
	"os"
	"sync/atomic"

	"filedata/pkg/contract"
)

// ErrInjected 为注入的失败。
var ErrInjected = errors.New("flaky: injected failure")

// Options 定义可选项。
type Options struct {
	// FailEvery: 每第 N 个文件以 ErrInjected 失败；<=0 不注入失败。
	FailEvery int `json:"fail_every"`
	// DoubleSignal: 完成后再次发信号并 panic（用于验证首次生效）。
	DoubleSignal bool `json:"double_signal"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Handler 是带状态的故障注入实现（callback 约定）：
// 按序号决定成功或失败；DoubleSignal 时在首个信号之后追加一次相反的信号并 panic。
type Handler struct {
	failEvery int
	double    bool
	logPath   string
	count     atomic.Int64
}

// New 构造 Handler；opts 为 nil 时不注入任何故障。
func New(opts *Options) *Handler {
	var o Options
	if opts != nil {
		o = *opts
	}
	return &Handler{failEvery: o.FailEvery, double: o.DoubleSignal, logPath: o.LogPath}
}

// Handler 返回 callback 约定的 contract.Handler。
func (h *Handler) Handler() contract.Handler { return contract.Callback(h.Attach) }

// Calls 返回已调用次数。
func (h *Handler) Calls() int64 { return h.count.Load() }

func (h *Handler) log(s string) {
	if h.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(h.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Attach 实现 contract.CallbackFunc。
func (h *Handler) Attach(f *contract.File, done contract.Signal) {
	n := h.count.Add(1)
	fail := h.failEvery > 0 && n%int64(h.failEvery) == 0
	data := map[string]any{"seq": n, "path": f.Path}
	if fail {
		h.log("fail")
		done(ErrInjected, nil)
	} else {
		h.log("ok")
		done(nil, data)
	}
	if !h.double {
		return
	}
	h.log("double")
	if fail {
		done(nil, data)
	} else {
		done(ErrInjected, nil)
	}
	panic("flaky: panic after signal")
}
