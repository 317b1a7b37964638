package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"filedata/pkg/contract"
	hck "filedata/plugins/handler/checksum"
	hxp "filedata/plugins/handler/expr"
	hfl "filedata/plugins/handler/flaky"
	hfm "filedata/plugins/handler/frontmatter"
	hrm "filedata/plugins/handler/remote"
	hsc "filedata/plugins/handler/sidecar"
	hst "filedata/plugins/handler/static"
	rfs "filedata/plugins/reader/filesystem"
	wfs "filedata/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewHandler 工厂签名：接收原样 JSON Options。
type NewHandler func(raw json.RawMessage) (contract.Handler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
}

// Handler 工厂注册表：每种调用约定至少一个实现。
var Handler = map[string]NewHandler{
	// static: 静态数据（value）
	"static": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hst.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		return hst.New(&opts)
	},
	// frontmatter: 解析 YAML front matter（sync）
	"frontmatter": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hfm.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		return hfm.New(&opts).Handler(), nil
	},
	// sidecar: 读取同名 JSON/YAML 边车（sync，返回 Future）
	"sidecar": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hsc.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		l, err := hsc.New(&opts)
		if err != nil {
			return contract.Handler{}, err
		}
		return l.Handler(), nil
	},
	// checksum: 内容摘要（callback）
	"checksum": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hck.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		h, err := hck.New(&opts)
		if err != nil {
			return contract.Handler{}, err
		}
		return h.Handler(), nil
	},
	// flaky: 故障注入（callback，测试用）
	"flaky": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hfl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		return hfl.New(&opts).Handler(), nil
	},
	// expr: 按表达式计算字段（sync）
	"expr": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hxp.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		e, err := hxp.New(&opts)
		if err != nil {
			return contract.Handler{}, err
		}
		return e.Handler(), nil
	},
	// remote: 把内容 POST 到远端服务，响应 JSON 作为数据（sync，返回 Future）
	"remote": func(raw json.RawMessage) (contract.Handler, error) {
		var opts hrm.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return contract.Handler{}, err
		}
		c, err := hrm.New(&opts)
		if err != nil {
			return contract.Handler{}, err
		}
		return c.Handler(), nil
	},
}

// HandlerInfo 描述一个已注册的 Handler（供 CLI 列表展示）。
type HandlerInfo struct {
	Name    string
	Kind    string
	Summary string
}

var handlerInfo = map[string]HandlerInfo{
	"static":      {Kind: "value", Summary: "attach options.data to every file"},
	"frontmatter": {Kind: "sync", Summary: "parse leading YAML front matter"},
	"sidecar":     {Kind: "sync/future", Summary: "load <name>.json|.yaml next to each file"},
	"checksum":    {Kind: "callback", Summary: "content digest, size and UUID"},
	"flaky":       {Kind: "callback", Summary: "fault injection for testing"},
	"expr":        {Kind: "sync", Summary: "computed fields from expressions over path, size and text"},
	"remote":      {Kind: "sync/future", Summary: "POST contents to a URL, attach the JSON reply"},
}

// Handlers 返回按名称排序的 Handler 列表。
func Handlers() []HandlerInfo {
	out := make([]HandlerInfo, 0, len(Handler))
	for name := range Handler {
		info := handlerInfo[name]
		info.Name = name
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
