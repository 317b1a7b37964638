package attach

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"filedata/internal/diag"
	"filedata/internal/rate"
	"filedata/pkg/contract"
)

// 约束：
// - 调用约定在 New 时由 Handler.Kind 一次性确定，之后每个文件只按该约定调用；
// - 每个输入文件最多产生一个事件（Push 或 Fail，二者不兼得），随后恰好调用一次 next；
// - next 只在 Push/Fail 完成之后调用；
// - 单文件错误只上报为错误事件，不终止通道。

// DefaultName 为错误事件中的默认插件名。
const DefaultName = "filedata"

const comp = "attach"

// Emitter: 宿主通道的出口。
type Emitter interface {
	// Push 向下游转发文件。
	Push(f *contract.File)
	// Fail 上报单文件错误事件（不关闭通道）。
	Fail(err error)
}

// Stats: 运行计数快照。
type Stats struct {
	Skipped    int64 // 无内容，直接转发
	Rejected   int64 // 流内容，不支持
	Forwarded  int64 // Handler 成功并转发
	Failed     int64 // Handler 报错 / panic / Future 拒绝
	Duplicates int64 // 被丢弃的重复完成信号
}

// Option 调整 Attacher 的可选行为。
type Option func(*Attacher)

// WithName 设置错误事件中的插件名。
func WithName(name string) Option {
	return func(a *Attacher) {
		if name != "" {
			a.name = name
		}
	}
}

// WithLogger 设置结构化日志器（可为 nil）。
func WithLogger(l *diag.Logger) Option {
	return func(a *Attacher) { a.logger = l }
}

// WithGate 在每次调用 Handler 前按 key 申请一个额度。
func WithGate(g rate.Gate, key rate.LimitKey) Option {
	return func(a *Attacher) {
		a.gate = g
		a.gateKey = key
	}
}

// Attacher 把 Handler 的结果附加到 File.Data 并转发。
// Handler 构造后只读；Attacher 可被多个宿主循环共享。
type Attacher struct {
	h       contract.Handler
	name    string
	logger  *diag.Logger
	gate    rate.Gate
	gateKey rate.LimitKey

	skipped    atomic.Int64
	rejected   atomic.Int64
	forwarded  atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
}

// New 构造 Attacher；h 为零值时返回包装 ErrNoHandler 的配置错误。
func New(h contract.Handler, opts ...Option) (*Attacher, error) {
	a := &Attacher{h: h, name: DefaultName}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	if h.IsZero() {
		return nil, contract.NewPluginError(a.name, contract.ErrNoHandler)
	}
	return a, nil
}

// Kind 返回构造时确定的调用约定。
func (a *Attacher) Kind() contract.Kind { return a.h.Kind() }

// Name 返回插件名。
func (a *Attacher) Name() string { return a.name }

// Stats 返回计数快照。
func (a *Attacher) Stats() Stats {
	return Stats{
		Skipped:    a.skipped.Load(),
		Rejected:   a.rejected.Load(),
		Forwarded:  a.forwarded.Load(),
		Failed:     a.failed.Load(),
		Duplicates: a.duplicates.Load(),
	}
}

// Process 处理单个文件：
//   - 无内容：原样转发，不调用 Handler；
//   - 流内容：上报 ErrStreamUnsupported，不调用 Handler，也不读取或关闭流；
//   - 内存内容：按约定调用 Handler，首个完成信号决定转发或失败。
//
// 异步约定下 Process 可能在完成前返回；完成由 next 通知。
func (a *Attacher) Process(ctx context.Context, f *contract.File, em Emitter, next func()) {
	if next == nil {
		next = func() {}
	}
	t0 := time.Now()
	switch {
	case f == nil:
		a.rejected.Add(1)
		em.Fail(contract.NewPluginError(a.name, fmt.Errorf("%w: nil file", contract.ErrInvalidInput)))
		next()
		return
	case f.IsNull():
		a.skipped.Add(1)
		a.logger.Skip(comp, "null contents", string(f.ID))
		diag.IncOp(comp, "skip", "skipped")
		em.Push(f)
		a.fileDone(f, diag.StatusSkipped, t0)
		next()
		return
	case f.IsStream():
		a.rejected.Add(1)
		err := contract.NewPluginError(a.name, contract.ErrStreamUnsupported)
		a.logger.ErrorFile(comp, string(diag.CodeUnsupported), "streaming not supported", nil, string(f.ID))
		diag.IncOp(comp, "error", "error")
		diag.IncError(comp, string(diag.CodeUnsupported))
		em.Fail(err)
		a.fileDone(f, diag.StatusFailed, t0)
		next()
		return
	}

	timer := a.logger.StartFileKV(comp, "invoke", string(f.ID), map[string]string{"kind": a.h.Kind().String()})
	c := newCompletion(func(err error, result any) {
		if err != nil {
			a.failed.Add(1)
			code := diag.Classify(contract.NewPluginError(a.name, err))
			kv := map[string]string{"err": err.Error()}
			var ue contract.UpstreamError
			if errors.As(err, &ue) {
				kv["upstream_status"] = strconv.Itoa(ue.UpstreamStatus())
			}
			a.logger.ErrorFileKV(comp, string(code), "handler failed", timer.Since(), string(f.ID), kv)
			diag.IncOp(comp, "error", "error")
			diag.IncError(comp, string(code))
			em.Fail(contract.NewPluginError(a.name, err))
			a.fileDone(f, diag.StatusFailed, t0)
			next()
			return
		}
		a.forwarded.Add(1)
		f.Data = result
		timer.Finish("forward", 1)
		diag.IncOp(comp, "finish", "success")
		diag.ObserveDuration(comp, "finish", time.Since(t0).Milliseconds())
		em.Push(f)
		a.fileDone(f, diag.StatusForwarded, t0)
		next()
	}, func() {
		a.duplicates.Add(1)
		a.logger.Debug(comp, "duplicate completion ignored", string(f.ID), nil)
		diag.IncOp(comp, "signal", "ignored")
	})

	if a.gate != nil {
		if err := a.gate.Wait(ctx, rate.Ask{Key: a.gateKey, Requests: 1}); err != nil {
			c.signal(err, nil)
			return
		}
	}
	a.invoke(ctx, f, c.signal)
}

// invoke 在 panic 边界内按约定调用 Handler（带 ctx 的 sync 函数收到运行 ctx）；panic 经完成信号转为失败（已完成时被丢弃）。
func (a *Attacher) invoke(ctx context.Context, f *contract.File, done contract.Signal) {
	defer func() {
		if r := recover(); r != nil {
			done(contract.PanicError(r), nil)
		}
	}()
	switch a.h.Kind() {
	case contract.KindCallback:
		a.h.CallbackFunc()(f, done)
	case contract.KindSync:
		v, err := a.h.CallSync(ctx, f)
		if err != nil {
			done(err, nil)
			return
		}
		settle(v, done)
	default:
		settle(a.h.StaticValue(), done)
	}
}

// settle: Future 挂接续体，其余值立即完成。
func settle(v any, done contract.Signal) {
	if fut, ok := v.(contract.Future); ok {
		fut.Then(
			func(x any) { done(nil, x) },
			func(err error) { done(err, nil) },
		)
		return
	}
	done(nil, v)
}

func (a *Attacher) fileDone(f *contract.File, status string, t0 time.Time) {
	if t := diag.GetTerminal(); t != nil {
		t.FileDone(f.Path, status, time.Since(t0))
	}
}

// Run 为顺序宿主循环：读取一个文件，处理，等待其 next 后再读取下一个。
// in 关闭时返回 nil；ctx 取消时返回 ctx.Err()。不关闭 out/errs（由所有者关闭）。
func (a *Attacher) Run(ctx context.Context, in <-chan *contract.File, out chan<- *contract.File, errs chan<- error) error {
	em := chanEmitter{ctx: ctx, out: out, errs: errs}
	for {
		var f *contract.File
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok = <-in:
		}
		if !ok {
			return nil
		}
		done := make(chan struct{})
		a.Process(ctx, f, em, func() { close(done) })
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// chanEmitter 把事件写入通道；ctx 取消时放弃发送。
type chanEmitter struct {
	ctx  context.Context
	out  chan<- *contract.File
	errs chan<- error
}

func (e chanEmitter) Push(f *contract.File) {
	select {
	case e.out <- f:
	case <-e.ctx.Done():
	}
}

func (e chanEmitter) Fail(err error) {
	select {
	case e.errs <- err:
	case <-e.ctx.Done():
	}
}
