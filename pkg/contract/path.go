package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径为跨平台稳定的 FileID：
// 反斜杠统一为正斜杠，清理多余分隔符与 . / .. 片段，保留相对/绝对语义。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
