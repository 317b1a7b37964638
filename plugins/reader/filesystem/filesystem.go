package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filedata/pkg/contract"
)

// Options 为文件系统 Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 递归时跳过的目录名（基名，大小写不敏感），如 [".git","node_modules"]。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Include: 递归时只交付基名匹配任一 glob 的文件（filepath.Match 语法）；为空表示全部。
	// 与 ExcludeDirNames 一样只作用于目录递归，显式给出的文件根总是交付。
	Include []string `json:"include"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	include    []string
}

// New 创建 FileSystem Reader；非法 glob 返回 ErrInvalidInput。
func New(opts *Options) (*FileSystem, error) {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, excludeDir: map[string]struct{}{}}
	if opts == nil {
		return r, nil
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name == "" {
			continue
		}
		r.excludeDir[strings.ToLower(name)] = struct{}{}
	}
	for _, pat := range opts.Include {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if _, err := filepath.Match(pat, ""); err != nil {
			return nil, fmt.Errorf("%w: include pattern %q: %v", contract.ErrInvalidInput, pat, err)
		}
		r.include = append(r.include, pat)
	}
	return r, nil
}

// Iterate 遍历 roots，按稳定顺序（字典序，目录先于文件）对每个常规文件调用 yield。
// roots 为空或仅含 "-" 时读取 STDIN（FileID 为 "stdin"）。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(os.Stdin, r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 符号链接：仅跟随到常规文件，目录链接忽略
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.emit(root, yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.emit(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !r.included(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			mode = t.Mode()
		}
		// 设备、FIFO、指向目录的链接等非常规文件跳过
		if !mode.IsRegular() {
			continue
		}
		if err := r.emit(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) included(name string) bool {
	if len(r.include) == 0 {
		return true
	}
	for _, pat := range r.include {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// emit 打开 p 并交付；yield 出错时由此关闭。
func (r *FileSystem) emit(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

var _ contract.Reader = (*FileSystem)(nil)
