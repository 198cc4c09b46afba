package response

import (
	"errors"
	"fmt"
)

// BusinessError 业务错误，携带错误码在业务层与传输层之间传递.
type BusinessError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *BusinessError) Error() string {
	msg := e.GetMessage()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *BusinessError) Unwrap() error {
	return e.Cause
}

// GetMessage 获取错误消息，未设置时使用错误码的默认消息.
func (e *BusinessError) GetMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message
}

// NewError 创建业务错误.
func NewError(code Code) *BusinessError {
	return &BusinessError{Code: code}
}

// NewErrorWithMessage 创建带自定义消息的业务错误.
func NewErrorWithMessage(code Code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// Wrap 包装错误为业务错误.
func Wrap(code Code, err error) *BusinessError {
	return &BusinessError{Code: code, Cause: err}
}

// WrapWithMessage 包装错误为带消息的业务错误.
func WrapWithMessage(code Code, message string, err error) *BusinessError {
	return &BusinessError{Code: code, Message: message, Cause: err}
}

// ExtractCode 从错误中提取错误码，无法识别时返回 CodeInternal.
func ExtractCode(err error) Code {
	if err == nil {
		return CodeSuccess
	}

	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	var code Code
	if errors.As(err, &code) {
		return code
	}
	return CodeInternal
}

// ExtractMessage 从错误中提取可返回给客户端的消息.
//
// 内部错误（5xxxx、6xxxx）只返回错误码的默认消息.
func ExtractMessage(err error) string {
	if err == nil {
		return CodeSuccess.Message
	}

	code := ExtractCode(err)
	if code.Num >= 50000 {
		return code.Message
	}

	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr.GetMessage()
	}
	return code.Message
}
