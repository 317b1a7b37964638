package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"filedata/internal/attach"
	"filedata/internal/diag"
	"filedata/internal/rate"
	"filedata/pkg/contract"
)

// - 阶段：source(Reader) → attach → sink(Writer)，另有错误收集器；各阶段一个 goroutine，由 errgroup 管理。
// - 顺序：attach 逐个处理，转发顺序与读取顺序一致。
// - 错误：单文件错误只收集不中止；Reader/Writer 错误或取消中止整体（首错取消）。
// - 资源：stream 模式下由 source 打开的流在运行结束后统一关闭。

// ReadMode 决定 source 如何把字节流变成 File。
type ReadMode string

const (
	ReadBuffer ReadMode = "buffer" // 完整读入内存
	ReadStream ReadMode = "stream" // 交付打开的流（attach 阶段不支持）
	ReadNone   ReadMode = "none"   // 不读取内容，产出空载荷文件
)

// DefaultDataSuffix 为数据边车的默认后缀。
const DefaultDataSuffix = ".data.json"

// Components 聚合运行所需的组件。
type Components struct {
	Reader  contract.Reader
	Handler contract.Handler
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	Read   ReadMode
	// DataSuffix: File.Data 序列化为 JSON 后写到 <FileID><DataSuffix>。
	DataSuffix string
	// HandlerName 用于错误事件的插件名与终端展示；为空时取 attach.DefaultName。
	HandlerName string
	// 限流闸门（可选）：若非空，则每次调用 Handler 前 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey
	// Buffer 为阶段间通道容量；<=0 时取 16。
	Buffer int
}

// Result 为一次运行的汇总。
type Result struct {
	Files   int64        // source 产出的文件数
	Written int64        // Writer 写出的工件数（含数据边车）
	Stats   attach.Stats // attach 阶段计数
	Errors  []error      // 单文件错误事件，按发生顺序
	Elapsed time.Duration
}

// OK 报告是否没有任何单文件错误。
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Run 执行完整流水线。返回的 error 仅表示宿主失败（配置、I/O、取消）；
// 单文件错误记录在 Result.Errors 中。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	var res Result
	set, err := sanity(comp, set)
	if err != nil {
		return res, fmt.Errorf("sanity: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	name := set.HandlerName
	if name == "" {
		name = attach.DefaultName
	}
	opts := []attach.Option{attach.WithName(name), attach.WithLogger(logger)}
	if set.Gate != nil {
		opts = append(opts, attach.WithGate(set.Gate, set.GateKey))
	}
	a, err := attach.New(comp.Handler, opts...)
	if err != nil {
		return res, fmt.Errorf("attach: %w", err)
	}

	t0 := time.Now()
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(name, a.Kind().String())
	}
	ptimer := logger.StartFileKV("pipeline", "run", "", map[string]string{
		"handler": name,
		"kind":    a.Kind().String(),
		"read":    string(set.Read),
	})

	g, gctx := errgroup.WithContext(ctx)
	files := make(chan *contract.File, set.Buffer)
	out := make(chan *contract.File, set.Buffer)
	errs := make(chan error, set.Buffer)

	var (
		mu      sync.Mutex
		closers []io.Closer
		fileErr []error
	)
	collect := func(err error) {
		mu.Lock()
		fileErr = append(fileErr, err)
		mu.Unlock()
	}

	// source
	g.Go(func() error {
		defer close(files)
		rtimer := logger.Start("reader", "iterate")
		var n int64
		err := comp.Reader.Iterate(gctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
			f, err := toFile(fid, rc, set.Read)
			if err != nil {
				return fmt.Errorf("read %s: %w", fid, err)
			}
			if f.IsStream() {
				mu.Lock()
				closers = append(closers, rc)
				mu.Unlock()
			}
			n++
			select {
			case files <- f:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		res.Files = n
		if err != nil {
			code := diag.Classify(err)
			logger.Error("reader", string(code), "iterate failed", rtimer.Since())
			diag.IncOp("reader", "error", "error")
			diag.IncError("reader", string(code))
			return fmt.Errorf("reader iterate: %w", err)
		}
		rtimer.Finish("iterate", n)
		diag.IncOp("reader", "finish", "success")
		return nil
	})

	// attach：仅在正常结束（无在途文件）时关闭下游通道
	g.Go(func() error {
		if err := a.Run(gctx, files, out, errs); err != nil {
			return err
		}
		close(out)
		close(errs)
		return nil
	})

	// sink
	var written int64
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case f, ok := <-out:
				if !ok {
					return nil
				}
				n, err := sink(gctx, comp.Writer, f, set.DataSuffix, logger)
				written += n
				if err != nil {
					if errors.Is(err, errEncodeData) {
						collect(contract.NewPluginError(name, err))
						continue
					}
					return err
				}
			}
		}
	})

	// 错误收集器（attach 已记录日志，这里只汇总）
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case err, ok := <-errs:
				if !ok {
					return nil
				}
				collect(err)
			}
		}
	})

	runErr := g.Wait()
	mu.Lock()
	for _, c := range closers {
		_ = c.Close()
	}
	res.Errors = fileErr
	mu.Unlock()
	res.Written = written
	res.Stats = a.Stats()
	res.Elapsed = time.Since(t0)

	if t := diag.GetTerminal(); t != nil {
		t.RunFinish(runErr == nil && res.OK(), res.Elapsed)
	}
	if runErr != nil {
		code := diag.Classify(runErr)
		logger.Error("pipeline", string(code), runErr.Error(), ptimer.Since())
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", string(code))
		return res, runErr
	}
	ptimer.Finish("run", res.Files)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "run", res.Elapsed.Milliseconds())
	return res, nil
}

// toFile 按读取模式构造 File。buffer/none 模式下 rc 在此关闭。
func toFile(fid contract.FileID, rc io.ReadCloser, mode ReadMode) (*contract.File, error) {
	switch mode {
	case ReadStream:
		return contract.NewStreamFile(string(fid), rc), nil
	case ReadNone:
		_ = rc.Close()
		return contract.NewNullFile(string(fid)), nil
	default:
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return contract.NewBufferFile(string(fid), b), nil
	}
}

var errEncodeData = errors.New("encode data")

// sink 写出内容与数据边车；返回写出的工件数。
// 仅 buffer 文件有内容可写；Data 为 nil 时不写边车。
func sink(ctx context.Context, w contract.Writer, f *contract.File, suffix string, logger *diag.Logger) (int64, error) {
	var n int64
	if f.IsBuffer() {
		wtimer := logger.StartFile("writer", "write", string(f.ID))
		if err := w.Write(ctx, contract.ArtifactID(f.ID), bytes.NewReader(f.Contents())); err != nil {
			code := diag.Classify(err)
			logger.ErrorFile("writer", string(code), "write failed", wtimer.Since(), string(f.ID))
			diag.IncOp("writer", "error", "error")
			diag.IncError("writer", string(code))
			return n, fmt.Errorf("writer write: %w", err)
		}
		wtimer.Finish("write", int64(len(f.Contents())))
		diag.IncOp("writer", "finish", "success")
		n++
	}
	if f.Data == nil {
		return n, nil
	}
	b, err := json.MarshalIndent(f.Data, "", "  ")
	if err != nil {
		logger.ErrorFile("writer", string(diag.CodeInvariant), "encode data failed", nil, string(f.ID))
		diag.IncOp("writer", "error", "error")
		return n, fmt.Errorf("%w: %s: %w", errEncodeData, f.ID, err)
	}
	id := contract.ArtifactID(string(f.ID) + suffix)
	if err := w.Write(ctx, id, bytes.NewReader(append(b, '\n'))); err != nil {
		code := diag.Classify(err)
		logger.ErrorFile("writer", string(code), "write data failed", nil, string(id))
		diag.IncOp("writer", "error", "error")
		diag.IncError("writer", string(code))
		return n, fmt.Errorf("writer write(data): %w", err)
	}
	diag.IncOp("writer", "finish", "success")
	return n + 1, nil
}

func sanity(c Components, s Settings) (Settings, error) {
	if c.Reader == nil || c.Writer == nil {
		return s, errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return s, errors.New("pipeline: empty inputs")
	}
	switch s.Read {
	case "":
		s.Read = ReadBuffer
	case ReadBuffer, ReadStream, ReadNone:
	default:
		return s, fmt.Errorf("%w: read mode %q", contract.ErrInvalidInput, s.Read)
	}
	if s.DataSuffix == "" {
		s.DataSuffix = DefaultDataSuffix
	}
	if s.Buffer <= 0 {
		s.Buffer = 16
	}
	return s, nil
}
