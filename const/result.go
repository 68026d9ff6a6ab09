package _const

// ResultCode 管理接口的响应码
type ResultCode int

const (
	ResultSuccess    ResultCode = 200 // 响应成功
	ResultFail       ResultCode = 500 // 响应失败
	ResultSystemBusy ResultCode = 503 // 系统繁忙
)

func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultFail:
		return "fail"
	case ResultSystemBusy:
		return "system busy"
	default:
		return "unknown"
	}
}
