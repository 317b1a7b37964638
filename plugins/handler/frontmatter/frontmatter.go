package frontmatter

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"filedata/pkg/contract"
)

// Options 为 front matter 解析器的配置。
type Options struct {
	// Strip: 解析后从文件内容中移除 front matter 块。
	Strip bool `json:"strip"`
	// Delimiter: 分隔行，默认 "---"。
	Delimiter string `json:"delimiter"`
}

// Parser 解析文件开头的 YAML front matter。
// 规则：
//   - 块以单独一行的分隔符开始（允许 UTF-8 BOM），以下一行单独的分隔符结束；
//   - 无块时返回空 map，内容不变；
//   - 块内 YAML 非法或顶层不是映射时返回错误。
type Parser struct {
	strip bool
	delim []byte
}

// New 创建 Parser。
func New(opts *Options) *Parser {
	p := &Parser{delim: []byte("---")}
	if opts != nil {
		p.strip = opts.Strip
		if opts.Delimiter != "" {
			p.delim = []byte(opts.Delimiter)
		}
	}
	return p
}

// Handler 返回 sync 约定的 Handler。
func (p *Parser) Handler() contract.Handler { return contract.Sync(p.Parse) }

// Parse 实现 contract.SyncFunc。
func (p *Parser) Parse(f *contract.File) (any, error) {
	block, rest, ok := p.split(f.Contents())
	meta := map[string]any{}
	if !ok {
		return meta, nil
	}
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return nil, fmt.Errorf("frontmatter: %s: %w", f.Path, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if p.strip {
		f.SetContents(rest)
	}
	return meta, nil
}

var bom = []byte("\xef\xbb\xbf")

// split 返回 (块内容, 块之后的内容, 是否存在块)。
func (p *Parser) split(b []byte) ([]byte, []byte, bool) {
	b = bytes.TrimPrefix(b, bom)
	first, after, ok := cutLine(b)
	if !ok && len(first) == 0 {
		return nil, nil, false
	}
	if !bytes.Equal(bytes.TrimRight(first, " \t"), p.delim) {
		return nil, nil, false
	}
	start := len(b) - len(after)
	pos := start
	for pos <= len(b) {
		line, next, more := cutLine(b[pos:])
		if bytes.Equal(bytes.TrimRight(line, " \t"), p.delim) {
			return b[start:pos], next, true
		}
		if !more {
			break
		}
		pos = len(b) - len(next)
	}
	return nil, nil, false
}

// cutLine 切出一行（去掉 \n 或 \r\n）；more 表示其后仍有换行。
func cutLine(b []byte) (line, rest []byte, more bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, b[len(b):], false
	}
	line = b[:i]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, b[i+1:], true
}
