package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filedata/pkg/contract"
)

func boolPtr(b bool) *bool { return &b }

func noTmpLeft(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomic 原子写入
func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir, Atomic: boolPtr(true)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Write(context.Background(), "docs/out.txt", bytes.NewBufferString("data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil || string(b) != "data" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	noTmpLeft(t, dir)
}

// 目标已存在时，原子写替换为新内容。
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	for _, v := range []string{"v1", "v2"} {
		if err := w.Write(context.Background(), "out.txt", bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, _ := os.ReadFile(filepath.Join(dir, "out.txt"))
	if string(b) != "v2" {
		t.Fatalf("expect replaced content v2, got %q", string(b))
	}
	noTmpLeft(t, dir)
}

// TestSkipExisting 已存在的目标不覆盖
func TestSkipExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o644)
	w, _ := New(&Options{OutputDir: dir, SkipExisting: true})
	r := strings.NewReader("new")
	if err := w.Write(context.Background(), "a.txt", r); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "a.txt")); string(b) != "old" {
		t.Fatalf("不应覆盖: %q", b)
	}
	if r.Len() != 0 {
		t.Fatalf("跳过时应读尽输入")
	}
	if err := w.Write(context.Background(), "b.txt", strings.NewReader("new")); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "b.txt")); string(b) != "new" {
		t.Fatalf("新目标应写出: %q", b)
	}
}

// TestWritePathInvalid 路径越界
func TestWritePathInvalid(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir(), Flat: boolPtr(false)})
	err := w.Write(context.Background(), "../bad", bytes.NewBufferString("x"))
	if !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestWriteTree 非扁平、非原子写入保留目录层级
func TestWriteTree(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir, Flat: boolPtr(false), Atomic: boolPtr(false)})
	if err := w.Write(context.Background(), "sub/out.txt", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "out.txt")); err != nil {
		t.Fatalf("file not created")
	}
}

// TestBaseDir 以 BaseDir 相对化后落盘；BaseDir 之外的 ID 拒绝
func TestBaseDir(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in")
	out := t.TempDir()
	w, _ := New(&Options{OutputDir: out, Flat: boolPtr(false), BaseDir: in})
	id := contract.NormalizeFileID(filepath.Join(in, "a", "b.md.data.json"))
	if err := w.Write(context.Background(), id, strings.NewReader("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "a", "b.md.data.json")); err != nil {
		t.Fatalf("相对路径未保留: %v", err)
	}
	other := contract.NormalizeFileID(filepath.Join(filepath.Dir(in), "x.txt"))
	if err := w.Write(context.Background(), other, strings.NewReader("x")); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("BaseDir 之外应拒绝: %v", err)
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.txt", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	for _, o := range []*Options{nil, {}, {OutputDir: "  "}} {
		if _, err := New(o); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("expect ErrInvalidInput, got %v", err)
		}
	}
	w, _ := New(&Options{OutputDir: "x", PermFile: 0o600, PermDir: 0o700, BufSize: 8})
	if w.permF != 0o600 || w.permD != 0o700 || w.bufSize != 8 {
		t.Fatalf("选项未生效: %+v", w)
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败不留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.txt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
