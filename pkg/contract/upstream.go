package contract

// UpstreamError 承载远端服务错误的最小诊断信息。
// Handler 返回的错误实现此接口时，attach 阶段会把状态码写入错误日志字段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
