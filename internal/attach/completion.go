package attach

import "sync/atomic"

// completion: 单文件的一次性完成单元。
// 无论来源（显式回调、同步返回、panic、Future 定值），只有第一次写入生效；
// 之后的写入静默丢弃，仅计数并在 debug 级别记录。
type completion struct {
	fired   atomic.Bool
	resolve func(err error, result any)
	dup     func()
}

func newCompletion(resolve func(error, any), dup func()) *completion {
	return &completion{resolve: resolve, dup: dup}
}

// signal 的签名与 contract.Signal 一致。
// 使用 CAS 而非 sync.Once：resolve 内部（下游 Push）重入 signal 时不会死锁。
func (c *completion) signal(err error, result any) {
	if !c.fired.CompareAndSwap(false, true) {
		if c.dup != nil {
			c.dup()
		}
		return
	}
	c.resolve(err, result)
}
