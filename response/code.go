// Package response 提供统一的 HTTP 响应体与业务错误码.
//
// 响应格式:
//
//	{
//	    "code": 0,
//	    "message": "成功",
//	    "data": { ... }
//	}
package response

import "net/http"

// Code 业务错误码.
type Code struct {
	Num        int    // 数字错误码
	Message    string // 默认错误消息
	HTTPStatus int    // 对应的 HTTP 状态码
}

// Error 实现 error 接口.
func (c Code) Error() string {
	return c.Message
}

// WithMessage 创建带自定义消息的错误码副本.
func (c Code) WithMessage(msg string) Code {
	c.Message = msg
	return c
}

// 预定义错误码.
//
// 错误码规范：
//   - 0: 成功
//   - 1xxxx: 通用错误
//   - 3xxxx: 请求参数错误
//   - 4xxxx: 资源错误
//   - 5xxxx: 服务器内部错误
//   - 6xxxx: 外部服务错误
var (
	CodeSuccess = Code{0, "成功", http.StatusOK}

	CodeUnknown  = Code{10000, "未知错误", http.StatusInternalServerError}
	CodeCanceled = Code{10001, "请求已取消", http.StatusRequestTimeout}
	CodeTimeout  = Code{10002, "请求超时", http.StatusGatewayTimeout}

	CodeInvalidParam     = Code{30001, "参数无效", http.StatusBadRequest}
	CodeMissingParam     = Code{30002, "缺少必需参数", http.StatusBadRequest}
	CodeValidationFailed = Code{30003, "参数验证失败", http.StatusBadRequest}

	CodeNotFound = Code{40001, "资源不存在", http.StatusNotFound}
	CodeConflict = Code{40003, "资源冲突", http.StatusConflict}

	CodeInternal      = Code{50001, "服务器内部错误", http.StatusInternalServerError}
	CodeDatabaseError = Code{50003, "数据库错误", http.StatusInternalServerError}

	CodeServiceUnavailable = Code{60001, "服务不可用", http.StatusServiceUnavailable}
)

// NewCode 创建自定义错误码.
func NewCode(num int, message string, httpStatus int) Code {
	return Code{Num: num, Message: message, HTTPStatus: httpStatus}
}
