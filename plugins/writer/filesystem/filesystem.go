package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filedata/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。未提供时为 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 是否扁平化输出（仅保留文件名）。未提供时为 true。
	Flat *bool `json:"flat,omitempty"`
	// BaseDir: 非扁平模式下，先把 ID 映射为相对 BaseDir 的路径再落到 OutputDir（保留输入目录结构）。
	BaseDir string `json:"base_dir,omitempty"`
	// SkipExisting: 目标已存在时跳过（不覆盖）。
	SkipExisting bool `json:"skip_existing,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将工件写入本地目录。
type FS struct {
	root         string
	base         string
	atomic       bool
	flat         bool
	skipExisting bool
	permF        os.FileMode
	permD        os.FileMode
	bufSize      int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: output_dir is required", contract.ErrInvalidInput)
	}
	w := &FS{
		root:         opts.OutputDir,
		atomic:       true,
		flat:         true,
		skipExisting: opts.SkipExisting,
		permF:        0o644,
		permD:        0o755,
		bufSize:      64 * 1024,
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.Flat != nil {
		w.flat = *opts.Flat
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	if b := strings.TrimSpace(opts.BaseDir); b != "" {
		w.base = filepath.Clean(b)
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 将 r 的全部字节写入 id 映射出的目标路径。
// SkipExisting 时若目标已存在，则读尽 r 后返回 nil。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if w.skipExisting {
		if _, err := os.Stat(dest); err == nil {
			_, _ = io.Copy(io.Discard, r)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: Clean + 可选 BaseDir 相对化 + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(w.root, rel), nil
	}
	if w.base != "" {
		r, err := filepath.Rel(w.base, rel)
		if err != nil {
			return "", contract.ErrPathInvalid
		}
		rel = r
	}
	// 禁止空路径、绝对路径、父级逃逸与卷名
	switch {
	case rel == "." || rel == "":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 尽力同步父目录
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
