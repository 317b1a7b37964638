package contract

import (
	"context"
	"io"
)

// Reader: 文件来源抽象（文件/目录/STDIN）。
// 约束：
// 1) 按文件回调 yield，顺序稳定；
// 2) FileID 稳定且去平台差异化；
// 3) 只交付字节流，是否读入内存由流水线按读取模式决定；
// 4) 不在内部起并发。
// yield 返回后 rc 的所有权归调用方（负责 Close）。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
