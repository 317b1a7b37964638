package diag

import "sync"

// Metrics: 最小指标出口。默认 no-op；适配层可通过 SetMetrics 替换实现导出。
// 名称约定：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
type Metrics interface {
	IncOp(comp, stage, result string)
	IncError(comp, code string)
	ObserveDuration(comp, stage string, durMS int64)
}

type noopMetrics struct{}

func (noopMetrics) IncOp(string, string, string)          {}
func (noopMetrics) IncError(string, string)               {}
func (noopMetrics) ObserveDuration(string, string, int64) {}

var (
	metricsMu sync.RWMutex
	metrics   Metrics = noopMetrics{}
)

// SetMetrics 设置进程级指标出口；nil 恢复 no-op。
func SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
}

func current() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}

// IncOp 累加操作计数（result=success|error|skipped|ignored）。
func IncOp(comp, stage, result string) { current().IncOp(comp, stage, result) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { current().IncError(comp, code) }

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	current().ObserveDuration(comp, stage, durMS)
}
