package contract

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"系统分隔符", filepath.Join("a", "b", "c"), "a/b/c"},
		{"父目录折叠", "./x/../y", "y"},
		{"空串", "", "."},
		{"Windows路径", "C:\\Users\\test\\file.txt", "C:/Users/test/file.txt"},
		{"清理多余斜杠", "path//to///file.txt", "path/to/file.txt"},
		{"混合分隔符", "src\\..\\test/./data\\\\file.txt", "test/data/file.txt"},
		{"中文路径", "项目\\文档/测试.txt", "项目/文档/测试.txt"},
		{"Unix绝对路径", "/home/user/../admin/file.txt", "/home/admin/file.txt"},
		{"复杂父目录", "a\\b\\c\\..\\..\\..\\..\\d", "../d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFileID(tt.input); string(got) != tt.expected {
				t.Errorf("NormalizeFileID(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestFilePayload 验证三种载荷形态与访问器。
func TestFilePayload(t *testing.T) {
	n := NewNullFile("a\\b.txt")
	if !n.IsNull() || n.Contents() != nil || n.Stream() != nil || n.ID != "a/b.txt" {
		t.Fatalf("null file 状态错误: %+v", n)
	}
	s := NewStreamFile("s.txt", io.NopCloser(strings.NewReader("x")))
	if !s.IsStream() || s.Stream() == nil || s.Contents() != nil {
		t.Fatalf("stream file 状态错误")
	}
	s.SetContents([]byte("y"))
	if !s.IsStream() {
		t.Fatalf("SetContents 不应改变 stream 形态")
	}
	b := NewBufferFile("b.txt", nil)
	if !b.IsBuffer() || b.Contents() == nil || len(b.Contents()) != 0 {
		t.Fatalf("空 buffer 应保持 buffer 形态")
	}
	b.SetContents([]byte("body"))
	if string(b.Contents()) != "body" {
		t.Fatalf("SetContents 未生效")
	}
	if b.Data != nil {
		t.Fatalf("Data 初始应为空")
	}
	if PayloadBuffer.String() != "buffer" || PayloadStream.String() != "stream" || PayloadNull.String() != "null" {
		t.Fatalf("Payload.String 错误")
	}
}

// TestHandlerOf 覆盖签名内省的各个分支。
func TestHandlerOf(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want Kind
		err  error
	}{
		{"nil", nil, KindNone, ErrNoHandler},
		{"zero handler", Handler{}, KindNone, ErrNoHandler},
		{"explicit", Value(1), KindValue, nil},
		{"static map", map[string]any{"message": "Hello"}, KindValue, nil},
		{"future value", Resolved(1), KindValue, nil},
		{"arity0", func() any { return 1 }, KindSync, nil},
		{"arity0 err", func() (any, error) { return 1, nil }, KindSync, nil},
		{"arity1", func(*File) any { return 1 }, KindSync, nil},
		{"arity1 err", func(*File) (any, error) { return 1, nil }, KindSync, nil},
		{"named sync", SyncFunc(func(*File) (any, error) { return 1, nil }), KindSync, nil},
		{"arity2", func(*File, Signal) {}, KindCallback, nil},
		{"arity2 plain", func(*File, func(error, any)) {}, KindCallback, nil},
		{"named callback", CallbackFunc(func(*File, Signal) {}), KindCallback, nil},
		{"ctx sync", func(context.Context, *File) (any, error) { return 1, nil }, KindSync, nil},
		{"concrete return", func(*File) map[string]any { return nil }, KindSync, nil},
		{"concrete return err", func(*File) (string, error) { return "", nil }, KindSync, nil},
		{"concrete arity0", func() int { return 1 }, KindSync, nil},
		{"bad signature", func(int) {}, KindNone, ErrInvalidInput},
		{"bad return", func(*File) error { return nil }, KindNone, ErrInvalidInput},
		{"typed nil arity1", (func(*File) any)(nil), KindNone, ErrNoHandler},
		{"typed nil arity1 err", (func(*File) (any, error))(nil), KindNone, ErrNoHandler},
		{"typed nil arity0", (func() any)(nil), KindNone, ErrNoHandler},
		{"typed nil arity0 err", (func() (any, error))(nil), KindNone, ErrNoHandler},
		{"typed nil callback", (func(*File, Signal))(nil), KindNone, ErrNoHandler},
		{"typed nil plain callback", (func(*File, func(error, any)))(nil), KindNone, ErrNoHandler},
		{"typed nil named sync", SyncFunc(nil), KindNone, ErrNoHandler},
		{"typed nil concrete", (func(*File) string)(nil), KindNone, ErrNoHandler},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			h, err := HandlerOf(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("want %v got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if h.Kind() != tt.want {
				t.Fatalf("kind want %s got %s", tt.want, h.Kind())
			}
		})
	}
}

// TestHandlerOfConcreteCall 验证具体返回类型的函数经适配后按原值与错误返回。
func TestHandlerOfConcreteCall(t *testing.T) {
	h, err := HandlerOf(func(f *File) map[string]any { return map[string]any{"id": string(f.ID)} })
	if err != nil {
		t.Fatalf("HandlerOf: %v", err)
	}
	v, err := h.CallSync(context.Background(), NewBufferFile("a.md", []byte("x")))
	if m, ok := v.(map[string]any); err != nil || !ok || m["id"] != "a.md" {
		t.Fatalf("结果错误: %v %v", v, err)
	}
	boom := errors.New("boom")
	h, _ = HandlerOf(func() (int, error) { return 0, boom })
	if _, err := h.CallSync(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("错误应原样返回: %v", err)
	}
}

// TestSyncContext 验证带 ctx 的 sync 函数收到调用方 ctx，SyncFunc 以 Background 调用。
func TestSyncContext(t *testing.T) {
	type key struct{}
	h := SyncContext(func(ctx context.Context, _ *File) (any, error) { return ctx.Value(key{}), nil })
	if h.Kind() != KindSync || SyncContext(nil).Kind() != KindNone {
		t.Fatalf("SyncContext kind 错误")
	}
	ctx := context.WithValue(context.Background(), key{}, "run")
	if v, _ := h.CallSync(ctx, nil); v != "run" {
		t.Fatalf("ctx 未传入: %v", v)
	}
	if v, _ := h.SyncFunc()(nil); v != nil {
		t.Fatalf("SyncFunc 应使用 Background: %v", v)
	}
	if _, err := Value(1).CallSync(ctx, nil); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("非 sync 约定应返回 ErrNoHandler: %v", err)
	}
}

// TestHandlerConstructorsNil 验证 nil 构造得到零值。
func TestHandlerConstructorsNil(t *testing.T) {
	if !Value(nil).IsZero() || !Sync(nil).IsZero() || !Callback(nil).IsZero() {
		t.Fatalf("nil 构造应为零值")
	}
	if KindCallback.String() != "callback" || Kind(99).String() != "none" {
		t.Fatalf("Kind.String 错误")
	}
	h := Value("x")
	if h.StaticValue() != "x" || h.SyncFunc() != nil || h.CallbackFunc() != nil {
		t.Fatalf("访问器错误")
	}
}

// TestPromiseSettleOnce 验证单次定值与续体调用。
func TestPromiseSettleOnce(t *testing.T) {
	p := NewPromise()
	var got []any
	p.Then(func(v any) { got = append(got, v) }, func(error) { t.Fatalf("不应拒绝") })
	if !p.Resolve(1) {
		t.Fatalf("首次 Resolve 应生效")
	}
	if p.Resolve(2) || p.Reject(errors.New("late")) {
		t.Fatalf("后续定值应被忽略")
	}
	p.Then(func(v any) { got = append(got, v) }, nil)
	if len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("续体结果错误: %v", got)
	}
	if !p.Settled() {
		t.Fatalf("应为已定值")
	}
}

// TestPromiseReject 验证拒绝路径与 nil 错误兜底。
func TestPromiseReject(t *testing.T) {
	boom := errors.New("boom")
	var got error
	Rejected(boom).Then(nil, func(err error) { got = err })
	if !errors.Is(got, boom) {
		t.Fatalf("want boom got %v", got)
	}
	p := NewPromise()
	p.Reject(nil)
	p.Then(nil, func(err error) { got = err })
	if !errors.Is(got, ErrInvalidInput) {
		t.Fatalf("nil 拒绝应映射为 ErrInvalidInput: %v", got)
	}
}

// TestGo 验证 goroutine 任务的成功、失败与 panic 定值。
func TestGo(t *testing.T) {
	wait := func(p *Promise) (any, error) {
		var wg sync.WaitGroup
		wg.Add(1)
		var v any
		var e error
		p.Then(func(x any) { v = x; wg.Done() }, func(err error) { e = err; wg.Done() })
		wg.Wait()
		return v, e
	}
	if v, err := wait(Go(func() (any, error) { return "ok", nil })); err != nil || v != "ok" {
		t.Fatalf("成功路径错误: %v %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := wait(Go(func() (any, error) { return nil, boom })); !errors.Is(err, boom) {
		t.Fatalf("失败路径错误: %v", err)
	}
	if _, err := wait(Go(func() (any, error) { panic("potato") })); !errors.Is(err, ErrHandlerPanic) {
		t.Fatalf("panic 应转为 ErrHandlerPanic: %v", err)
	}
}

// TestPluginError 验证错误包装保持原始错误可达。
func TestPluginError(t *testing.T) {
	type custom struct{ error }
	inner := custom{errors.New("x")}
	err := error(NewPluginError("filedata", inner))
	if err.Error() != "filedata: x" {
		t.Fatalf("Error() 错误: %s", err)
	}
	var c custom
	if !errors.As(err, &c) {
		t.Fatalf("应可还原原始错误")
	}
	if (&PluginError{Plugin: "p"}).Error() != "p" {
		t.Fatalf("nil Err 的 Error() 错误")
	}
	perr := PanicError(io.EOF)
	if !errors.Is(perr, ErrHandlerPanic) || !errors.Is(perr, io.EOF) {
		t.Fatalf("PanicError 应同时包装两者: %v", perr)
	}
}
