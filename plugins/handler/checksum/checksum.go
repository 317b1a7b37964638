package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/google/uuid"

	"filedata/pkg/contract"
)

// Options 为摘要 Handler 的配置。
type Options struct {
	// Algo: sha256（默认）| sha1 | md5。
	Algo string `json:"algo"`
}

// Sum 为附加到文件的摘要数据。
type Sum struct {
	Algo   string `json:"algo"`
	Digest string `json:"digest"`
	Size   int    `json:"size"`
	// UUID: 以摘要为名的 v5 UUID（同内容同 ID）。
	UUID string `json:"uuid"`
}

// Hasher 在独立 goroutine 中计算摘要并通过完成信号交付。
type Hasher struct {
	algo    string
	newHash func() hash.Hash
}

// New 创建 Hasher；未知算法返回 ErrInvalidInput。
func New(opts *Options) (*Hasher, error) {
	algo := "sha256"
	if opts != nil && strings.TrimSpace(opts.Algo) != "" {
		algo = strings.ToLower(strings.TrimSpace(opts.Algo))
	}
	h := &Hasher{algo: algo}
	switch algo {
	case "sha256":
		h.newHash = sha256.New
	case "sha1":
		h.newHash = sha1.New
	case "md5":
		h.newHash = md5.New
	default:
		return nil, fmt.Errorf("%w: checksum algo %q", contract.ErrInvalidInput, algo)
	}
	return h, nil
}

// Handler 返回 callback 约定的 Handler。
func (h *Hasher) Handler() contract.Handler { return contract.Callback(h.Attach) }

// Attach 实现 contract.CallbackFunc。
func (h *Hasher) Attach(f *contract.File, done contract.Signal) {
	b := f.Contents()
	go func() { done(nil, h.Sum(b)) }()
}

// Sum 同步计算 b 的摘要。
func (h *Hasher) Sum(b []byte) Sum {
	d := h.newHash()
	_, _ = d.Write(b)
	sum := d.Sum(nil)
	return Sum{
		Algo:   h.algo,
		Digest: hex.EncodeToString(sum),
		Size:   len(b),
		UUID:   uuid.NewSHA1(uuid.NameSpaceOID, sum).String(),
	}
}
