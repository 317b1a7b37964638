package contract

import (
	"fmt"
	"sync"
)

// Future: 尚未就绪的结果（“可继续”值）。
// 约束：onFulfilled/onRejected 二者至多调用其一，且仅一次。
type Future interface {
	Then(onFulfilled func(any), onRejected func(error))
}

// Promise 是 Future 的最小实现：单次定值，后续 Resolve/Reject 忽略。
// 定值前注册的续体由定值方 goroutine 依序调用；定值后注册的续体立即调用。
type Promise struct {
	mu      sync.Mutex
	settled bool
	val     any
	err     error
	conts   []continuation
}

type continuation struct {
	ok  func(any)
	bad func(error)
}

// NewPromise 返回未定值的 Promise。
func NewPromise() *Promise { return &Promise{} }

// Resolved 返回已成功定值的 Promise。
func Resolved(v any) *Promise {
	p := NewPromise()
	p.Resolve(v)
	return p
}

// Rejected 返回已失败定值的 Promise。
func Rejected(err error) *Promise {
	p := NewPromise()
	p.Reject(err)
	return p
}

// Go 在独立 goroutine 中执行 fn，并以其结果定值；fn 内 panic 视为拒绝。
func Go(fn func() (any, error)) *Promise {
	p := NewPromise()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.Reject(PanicError(r))
			}
		}()
		v, err := fn()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p
}

// Resolve 以 v 成功定值；返回是否生效。
func (p *Promise) Resolve(v any) bool { return p.settle(v, nil) }

// Reject 以 err 失败定值；err 为 nil 时按 ErrInvalidInput 处理。返回是否生效。
func (p *Promise) Reject(err error) bool {
	if err == nil {
		err = fmt.Errorf("%w: reject with nil error", ErrInvalidInput)
	}
	return p.settle(nil, err)
}

// Settled 报告是否已定值。
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Then 实现 Future。
func (p *Promise) Then(onFulfilled func(any), onRejected func(error)) {
	p.mu.Lock()
	if !p.settled {
		p.conts = append(p.conts, continuation{ok: onFulfilled, bad: onRejected})
		p.mu.Unlock()
		return
	}
	v, err := p.val, p.err
	p.mu.Unlock()
	fire(continuation{ok: onFulfilled, bad: onRejected}, v, err)
}

func (p *Promise) settle(v any, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.val, p.err = v, err
	conts := p.conts
	p.conts = nil
	p.mu.Unlock()
	for _, c := range conts {
		fire(c, v, err)
	}
	return true
}

func fire(c continuation, v any, err error) {
	if err != nil {
		if c.bad != nil {
			c.bad(err)
		}
		return
	}
	if c.ok != nil {
		c.ok(v)
	}
}

var _ Future = (*Promise)(nil)
