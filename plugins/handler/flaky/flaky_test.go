package flaky

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filedata/pkg/contract"
)

type call struct {
	err error
	v   any
}

// TestFailEvery 验证按序号注入失败与调试日志。
func TestFailEvery(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flaky.log")
	h := New(&Options{FailEvery: 2, LogPath: logPath})
	var got []call
	for i := 0; i < 4; i++ {
		h.Attach(contract.NewBufferFile("a.txt", nil), func(err error, v any) { got = append(got, call{err, v}) })
	}
	if len(got) != 4 || got[0].err != nil || !errors.Is(got[1].err, ErrInjected) || got[2].err != nil || !errors.Is(got[3].err, ErrInjected) {
		t.Fatalf("注入序列错误: %+v", got)
	}
	if m := got[2].v.(map[string]any); m["seq"] != int64(3) || m["path"] != "a.txt" {
		t.Fatalf("数据错误: %v", m)
	}
	b, _ := os.ReadFile(logPath)
	if strings.Count(string(b), "fail") != 2 || h.Calls() != 4 {
		t.Fatalf("日志或计数错误: %q %d", b, h.Calls())
	}
}

// TestDoubleSignal 验证二次信号后 panic。
func TestDoubleSignal(t *testing.T) {
	h := New(&Options{DoubleSignal: true})
	if h.Handler().Kind() != contract.KindCallback {
		t.Fatalf("应为 callback 约定")
	}
	var got []call
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("应 panic")
			}
		}()
		h.Attach(contract.NewBufferFile("a.txt", nil), func(err error, v any) { got = append(got, call{err, v}) })
	}()
	if len(got) != 2 || got[0].err != nil || !errors.Is(got[1].err, ErrInjected) {
		t.Fatalf("信号序列错误: %+v", got)
	}
	if New(nil).Handler().Kind() != contract.KindCallback {
		t.Fatalf("nil 选项应可用")
	}
}
