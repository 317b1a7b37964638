package expr

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"filedata/pkg/contract"
)

// Options: fields 为 字段名 → 表达式。
// 表达式可引用 path, name, ext, dir, size, lines, text。
type Options struct {
	Fields map[string]string `json:"fields"`
}

type field struct {
	name string
	prog *vm.Program
}

// Evaluator 预编译全部表达式；每个文件按字段名顺序求值，结果组成 map。
type Evaluator struct {
	fields []field
}

// exprEnv 仅用于编译期类型检查。
var exprEnv = map[string]any{
	"path":  "",
	"name":  "",
	"ext":   "",
	"dir":   "",
	"size":  0,
	"lines": 0,
	"text":  "",
}

// New 编译表达式；为空或编译失败返回 ErrInvalidInput。
func New(opts *Options) (*Evaluator, error) {
	if opts == nil || len(opts.Fields) == 0 {
		return nil, fmt.Errorf("expr: %w: fields is empty", contract.ErrInvalidInput)
	}
	names := make([]string, 0, len(opts.Fields))
	for k := range opts.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	e := &Evaluator{fields: make([]field, 0, len(names))}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expr: %w: empty field name", contract.ErrInvalidInput)
		}
		prog, err := expr.Compile(opts.Fields[name], expr.Env(exprEnv))
		if err != nil {
			return nil, fmt.Errorf("expr: %w: field %q: %v", contract.ErrInvalidInput, name, err)
		}
		e.fields = append(e.fields, field{name: name, prog: prog})
	}
	return e, nil
}

// Handler 返回 sync 约定的 Handler。
func (e *Evaluator) Handler() contract.Handler { return contract.Sync(e.Eval) }

// Eval 实现 contract.SyncFunc。
func (e *Evaluator) Eval(f *contract.File) (any, error) {
	text := string(f.Contents())
	p := string(f.ID)
	env := map[string]any{
		"path":  p,
		"name":  path.Base(p),
		"ext":   path.Ext(p),
		"dir":   path.Dir(p),
		"size":  len(f.Contents()),
		"lines": countLines(text),
		"text":  text,
	}
	out := make(map[string]any, len(e.fields))
	for _, fd := range e.fields {
		v, err := expr.Run(fd.prog, env)
		if err != nil {
			return nil, fmt.Errorf("expr: field %q: %w", fd.name, err)
		}
		out[fd.name] = v
	}
	return out, nil
}

// countLines: 末行无换行也计一行；空内容为 0。
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
