package response

import (
	"net/http"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

// Response 统一响应体.
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// OK 创建成功响应.
func OK[T any](data T) Response[T] {
	return Response[T]{
		Code:    CodeSuccess.Num,
		Message: CodeSuccess.Message,
		Data:    data,
	}
}

// FailWithError 从 error 创建失败响应.
func FailWithError(err error) Response[any] {
	return Response[any]{
		Code:    ExtractCode(err).Num,
		Message: ExtractMessage(err),
	}
}

// WriteJSON 写入 JSON 响应.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return jsoncodec.Encode(w, data)
}

// WriteSuccess 写入成功响应.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteJSON(w, http.StatusOK, OK(data))
}

// WriteError 写入错误响应，HTTP 状态码取自错误码.
func WriteError(w http.ResponseWriter, err error) error {
	return WriteJSON(w, ExtractCode(err).HTTPStatus, FailWithError(err))
}
