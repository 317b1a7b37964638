package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"filedata/pkg/contract"
)

// LimitKey: 限流分组键（通常为 Handler 名称）。
type LimitKey string

// Limits: 每分组的限额配置。RPM 为 0 表示不限流。
type Limits struct {
	RPM   int // handler invocations per minute
	Burst int // 允许的突发量；<=0 时取 1
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；申请量超过突发上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (avail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now（仅影响 Try/Snapshot）。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*xrate.Limiter, len(m))}
	for k, lim := range m {
		g.m[k] = newLimiter(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*xrate.Limiter
}

// newLimiter: RPM 折算为每请求间隔；RPM<=0 为无限额。
func newLimiter(lim Limits) *xrate.Limiter {
	if lim.RPM <= 0 {
		return xrate.NewLimiter(xrate.Inf, 0)
	}
	burst := lim.Burst
	if burst <= 0 {
		burst = 1
	}
	return xrate.NewLimiter(xrate.Every(time.Minute/time.Duration(lim.RPM)), burst)
}

func (g *gate) get(key LimitKey) *xrate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.m[key]
	if l == nil {
		// 未配置的 key 视为不限额
		l = newLimiter(Limits{})
		g.m[key] = l
	}
	return l
}

func (g *gate) Try(a Ask) bool {
	if a.Requests <= 0 {
		return false
	}
	return g.get(a.Key).AllowN(g.clk(), a.Requests)
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 {
		return contract.ErrInvalidInput
	}
	l := g.get(a.Key)
	if l.Limit() != xrate.Inf && a.Requests > l.Burst() {
		return fmt.Errorf("%w: requests %d exceed burst %d", contract.ErrInvalidInput, a.Requests, l.Burst())
	}
	return l.WaitN(ctx, a.Requests)
}

// Snapshot: 返回当前可用请求数的向下取整估值（仅诊断）；不限额时返回 -1。
func (g *gate) Snapshot(key LimitKey) int {
	l := g.get(key)
	if l.Limit() == xrate.Inf {
		return -1
	}
	n := int(l.TokensAt(g.clk()))
	if n < 0 {
		n = 0
	}
	return n
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
