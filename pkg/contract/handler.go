package contract

import (
	"context"
	"fmt"
	"reflect"
)

// Signal: 回调约定下的完成信号，(err, result) 二选一有效。
// 由 attach 阶段提供；仅首次调用生效，后续调用被忽略。
type Signal func(err error, result any)

// SyncFunc: 单参约定，返回值即数据（可以是 Future）。
type SyncFunc func(f *File) (any, error)

// SyncContextFunc: 单参约定的带 ctx 版本；ctx 随运行取消，适合阻塞 I/O。
type SyncContextFunc func(ctx context.Context, f *File) (any, error)

// CallbackFunc: 双参约定，通过 done 报告结果，必须恰好调用一次。
type CallbackFunc func(f *File, done Signal)

// Kind: Handler 的调用约定，在构造期一次性确定。
type Kind int

const (
	KindNone Kind = iota
	KindValue
	KindSync
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindSync:
		return "sync"
	case KindCallback:
		return "callback"
	default:
		return "none"
	}
}

// Handler: 数据产生者的显式标签联合：Value | Sync | Callback。
// 零值表示“未提供 Handler”。
type Handler struct {
	kind     Kind
	value    any
	sync     SyncFunc
	syncCtx  SyncContextFunc
	callback CallbackFunc
}

// Value 以静态值（或 Future）构造 Handler；nil 返回零值。
func Value(v any) Handler {
	if v == nil {
		return Handler{}
	}
	return Handler{kind: KindValue, value: v}
}

// Sync 以单参函数构造 Handler；nil 返回零值。
func Sync(fn SyncFunc) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{kind: KindSync, sync: fn}
}

// SyncContext 以带 ctx 的单参函数构造 Handler（sync 约定）；nil 返回零值。
func SyncContext(fn SyncContextFunc) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{kind: KindSync, syncCtx: fn}
}

// Callback 以双参函数构造 Handler；nil 返回零值。
func Callback(fn CallbackFunc) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{kind: KindCallback, callback: fn}
}

func (h Handler) Kind() Kind   { return h.kind }
func (h Handler) IsZero() bool { return h.kind == KindNone }

// StaticValue 返回 value 约定下的值。
func (h Handler) StaticValue() any { return h.value }

// SyncFunc 返回 sync 约定下的函数；其他约定返回 nil。
// 带 ctx 的 Handler 以 context.Background() 调用。
func (h Handler) SyncFunc() SyncFunc {
	if h.syncCtx != nil {
		return func(f *File) (any, error) { return h.syncCtx(context.Background(), f) }
	}
	return h.sync
}

// CallSync 在 ctx 下调用 sync 约定函数；非 sync 约定返回 ErrNoHandler。
func (h Handler) CallSync(ctx context.Context, f *File) (any, error) {
	switch {
	case h.syncCtx != nil:
		return h.syncCtx(ctx, f)
	case h.sync != nil:
		return h.sync(f)
	}
	return nil, ErrNoHandler
}

// CallbackFunc 返回 callback 约定下的函数；其他约定返回 nil。
func (h Handler) CallbackFunc() CallbackFunc { return h.callback }

// HandlerOf 依据 v 的静态函数签名（参数个数）选择调用约定：
//   - 0/1 个参数：返回值约定（Sync）；返回类型可为任意具体类型，可带尾随 error；
//   - 2 个参数 (file, signal)：回调约定（Callback）；(ctx, file) 为带 ctx 的 Sync；
//   - 非函数：静态值（Value），可为 Future；
//   - nil（含带类型的 nil 函数）：ErrNoHandler。
func HandlerOf(v any) (Handler, error) {
	var h Handler
	switch fn := v.(type) {
	case nil:
		return Handler{}, ErrNoHandler
	case Handler:
		h = fn
	case CallbackFunc:
		h = Callback(fn)
	case func(*File, Signal):
		h = Callback(fn)
	case SyncFunc:
		h = Sync(fn)
	case func(*File) (any, error):
		h = Sync(fn)
	case SyncContextFunc:
		h = SyncContext(fn)
	case func(context.Context, *File) (any, error):
		h = SyncContext(fn)
	case func(*File) any:
		if fn != nil {
			h = Sync(func(f *File) (any, error) { return fn(f), nil })
		}
	case func() (any, error):
		if fn != nil {
			h = Sync(func(*File) (any, error) { return fn() })
		}
	case func() any:
		if fn != nil {
			h = Sync(func(*File) (any, error) { return fn(), nil })
		}
	case func(*File, func(error, any)):
		if fn != nil {
			h = Callback(func(f *File, done Signal) { fn(f, done) })
		}
	default:
		if !isFunc(v) {
			return Value(v), nil
		}
		var err error
		if h, err = reflectSync(v); err != nil {
			return Handler{}, err
		}
	}
	if h.IsZero() {
		return Handler{}, ErrNoHandler
	}
	return h, nil
}

var (
	fileType  = reflect.TypeOf((*File)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// reflectSync 适配返回具体类型的 0/1 参函数，例如 func(*File) map[string]any
// 或 func(*File) (string, error)。参数只能是 *File；返回值为 (T) 或 (T, error)。
func reflectSync(v any) (Handler, error) {
	rv := reflect.ValueOf(v)
	t := rv.Type()
	bad := fmt.Errorf("%w: unsupported handler signature %T", ErrInvalidInput, v)
	if t.IsVariadic() || t.NumIn() > 1 || (t.NumIn() == 1 && t.In(0) != fileType) {
		return Handler{}, bad
	}
	switch {
	case t.NumOut() == 1 && t.Out(0) != errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return Handler{}, bad
	}
	if rv.IsNil() {
		return Handler{}, ErrNoHandler
	}
	return Sync(func(f *File) (any, error) {
		var in []reflect.Value
		if t.NumIn() == 1 {
			in = []reflect.Value{reflect.ValueOf(f)}
		}
		out := rv.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}), nil
}

// isFunc 判断 v 是否为未识别签名的函数值（避免把函数当静态数据附加）。
func isFunc(v any) bool {
	return reflect.TypeOf(v).Kind() == reflect.Func
}
