package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"filedata/pkg/contract"
)

var (
	// ErrRateLimited: 上游返回 429。
	ErrRateLimited = errors.New("remote: rate limited")
	// ErrResponseInvalid: 上游 2xx 但响应体不是合法 JSON。
	ErrResponseInvalid = errors.New("remote: invalid response")
)

// Options: 最小必需配置。
type Options struct {
	URL            string `json:"url"`             // 必填；文件内容以请求体 POST 到此地址
	Method         string `json:"method"`          // 默认 POST
	ContentType    string `json:"content_type"`    // 默认 application/octet-stream
	APIKeyEnv      string `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int    `json:"timeout_seconds"` // client 级超时（秒），默认 30
	// DisableDefaultAuth: 关闭 Authorization: Bearer 注入。
	DisableDefaultAuth bool              `json:"disable_default_auth"`
	ExtraHeaders       map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.Method == "" {
		o.Method = http.MethodPost
	}
	if o.ContentType == "" {
		o.ContentType = "application/octet-stream"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
}

// Client 把文件内容发给远端服务，并把 JSON 响应作为附加数据。
type Client struct {
	url         string
	method      string
	contentType string
	apiKey      string
	disableAuth bool
	extraH      map[string]string
	do          func(*http.Request) (*http.Response, error)
}

// New 构造客户端。
func New(opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.defaults()
	u := strings.TrimSpace(o.URL)
	if !(strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")) {
		return nil, fmt.Errorf("remote: %w: url must be http(s)", contract.ErrInvalidInput)
	}
	key := o.APIKey
	if key == "" && o.APIKeyEnv != "" {
		key = os.Getenv(o.APIKeyEnv)
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	return &Client{
		url:         u,
		method:      strings.ToUpper(o.Method),
		contentType: o.ContentType,
		apiKey:      key,
		disableAuth: o.DisableDefaultAuth,
		extraH:      o.ExtraHeaders,
		do:          hc.Do,
	}, nil
}

// Handler: sync 约定，立即返回在独立 goroutine 上完成的 Future。
// 请求绑定运行 ctx，取消时在途请求随之中止。
func (c *Client) Handler() contract.Handler {
	return contract.SyncContext(func(ctx context.Context, f *contract.File) (any, error) {
		path, body := f.Path, f.Contents()
		return contract.Go(func() (any, error) {
			return c.Fetch(ctx, path, body)
		}), nil
	})
}

// upstreamError 实现 net.Error 与 contract.UpstreamError：5xx/408 归为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("remote upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// Fetch: 单次调用，同步返回解码后的 JSON。
func (c *Client) Fetch(ctx context.Context, path string, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if c.apiKey != "" && !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", c.contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-File-Path", path)
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return nil, fmt.Errorf("remote upstream %d: %s: %w", resp.StatusCode, msg, contract.ErrInvalidInput)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, ErrResponseInvalid)
	}
	return v, nil
}
