package contract

import "io"

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Payload: 文件内容的载荷形态。
type Payload int

const (
	// PayloadNull: 无内容（例如只关心路径的场景）。
	PayloadNull Payload = iota
	// PayloadStream: 内容为尚未读取的打开流。
	PayloadStream
	// PayloadBuffer: 内容已完整读入内存（可为空切片）。
	PayloadBuffer
)

func (p Payload) String() string {
	switch p {
	case PayloadStream:
		return "stream"
	case PayloadBuffer:
		return "buffer"
	default:
		return "null"
	}
}

// File: 在流水线中流动的文件对象。
// 约束：
//  1. ID 由 Path 规范化得到，创建后不变；
//  2. 载荷形态由构造函数决定，SetContents 不改变形态；
//  3. Data 初始为空，由 attach 阶段至多写入一次，且仅针对 buffer 载荷。
type File struct {
	ID   FileID
	Path string
	// Data: 附加的任意元数据（形状不做校验）。
	Data any

	payload  Payload
	contents []byte
	stream   io.ReadCloser
}

// NewNullFile 构造无内容文件。
func NewNullFile(path string) *File {
	return &File{ID: NormalizeFileID(path), Path: path, payload: PayloadNull}
}

// NewBufferFile 构造内存内容文件；b 为 nil 时视为空内容，形态仍为 buffer。
func NewBufferFile(path string, b []byte) *File {
	if b == nil {
		b = []byte{}
	}
	return &File{ID: NormalizeFileID(path), Path: path, payload: PayloadBuffer, contents: b}
}

// NewStreamFile 构造流内容文件；关闭 rc 由创建方负责。
func NewStreamFile(path string, rc io.ReadCloser) *File {
	return &File{ID: NormalizeFileID(path), Path: path, payload: PayloadStream, stream: rc}
}

func (f *File) Payload() Payload { return f.payload }
func (f *File) IsNull() bool     { return f.payload == PayloadNull }
func (f *File) IsStream() bool   { return f.payload == PayloadStream }
func (f *File) IsBuffer() bool   { return f.payload == PayloadBuffer }

// Contents 返回 buffer 内容；其他形态返回 nil。
func (f *File) Contents() []byte {
	if f.payload != PayloadBuffer {
		return nil
	}
	return f.contents
}

// Stream 返回 stream 内容；其他形态返回 nil。
func (f *File) Stream() io.ReadCloser {
	if f.payload != PayloadStream {
		return nil
	}
	return f.stream
}

// SetContents 替换 buffer 内容（例如剥离 front matter）；非 buffer 文件忽略。
func (f *File) SetContents(b []byte) {
	if f.payload != PayloadBuffer {
		return
	}
	if b == nil {
		b = []byte{}
	}
	f.contents = b
}
