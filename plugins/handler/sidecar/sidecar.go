package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"filedata/pkg/contract"
)

// ErrMissing: required 模式下找不到边车文件。
var ErrMissing = errors.New("sidecar not found")

// Options 为边车加载器的配置。
type Options struct {
	// Exts: 依次尝试的边车扩展名，默认 [".json", ".yaml", ".yml"]。
	Exts []string `json:"exts"`
	// Required: 找不到边车时拒绝（否则返回空 map）。
	Required bool `json:"required"`
}

// Loader 为每个文件查找同名边车（<dir>/<base 去扩展名><ext>）并解码。
// 读取与解码在独立 goroutine 中进行，结果以 Future 交付。
type Loader struct {
	exts     []string
	required bool
}

// New 创建 Loader。
func New(opts *Options) (*Loader, error) {
	l := &Loader{exts: []string{".json", ".yaml", ".yml"}}
	if opts != nil {
		l.required = opts.Required
		if len(opts.Exts) > 0 {
			l.exts = nil
			for _, e := range opts.Exts {
				e = strings.ToLower(strings.TrimSpace(e))
				if e == "" {
					continue
				}
				if !strings.HasPrefix(e, ".") {
					e = "." + e
				}
				if !supported(e) {
					return nil, fmt.Errorf("%w: sidecar ext %q", contract.ErrInvalidInput, e)
				}
				l.exts = append(l.exts, e)
			}
		}
	}
	return l, nil
}

func supported(ext string) bool {
	switch ext {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Handler 返回 sync 约定的 Handler，其返回值为 Future。
func (l *Loader) Handler() contract.Handler {
	return contract.Sync(func(f *contract.File) (any, error) {
		path := filepath.FromSlash(f.Path)
		return contract.Go(func() (any, error) { return l.Load(path) }), nil
	})
}

// Load 同步查找并解码 path 的边车。
func (l *Loader) Load(path string) (any, error) {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range l.exts {
		cand := stem + ext
		if cand == path {
			continue
		}
		b, err := os.ReadFile(cand)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		v, err := decode(ext, b)
		if err != nil {
			return nil, fmt.Errorf("sidecar %s: %w", cand, err)
		}
		return v, nil
	}
	if l.required {
		return nil, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	return map[string]any{}, nil
}

func decode(ext string, b []byte) (any, error) {
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if ext == ".json" {
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
