package httpapi

// Result 统一 JSON 响应信封
// - code: 2000 成功，-1 业务错误
// - type: 'success' | 'error'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// ResultSessionExpired 使用 code=60401 + HTTP 401（前端拦截器特殊处理）
	ResultSessionExpired = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

func SessionExpired() Result[any] {
	return Result[any]{Code: ResultSessionExpired, Type: "error", Message: "session expired", Result: nil}
}
