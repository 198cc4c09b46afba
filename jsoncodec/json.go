// Package jsoncodec 提供统一的 JSON 序列化工具.
//
// 底层使用 sonic 的标准库兼容配置，输出与 encoding/json 一致（键排序、HTML 转义），
// 事件载荷与 HTTP 响应共用同一套编码规则.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// API 默认序列化配置.
var API = sonic.ConfigStd

// Marshal 序列化为 JSON.
func Marshal(v any) ([]byte, error) {
	return API.Marshal(v)
}

// Unmarshal 将 JSON 反序列化到 v.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyInput
	}
	return API.Unmarshal(data, v)
}

// MarshalString 序列化为 JSON 字符串.
func MarshalString(v any) (string, error) {
	return API.MarshalToString(v)
}

// Encode 将 v 编码写入 w.
func Encode(w io.Writer, v any) error {
	return API.NewEncoder(w).Encode(v)
}

// Decode 从 r 读取并解码到 v，拒绝未知字段.
func Decode(r io.Reader, v any) error {
	dec := API.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Convert 通过一次 JSON 往返把 src 重新绑定为 dst 的类型.
//
// 用于把入站事件中的通用 JSON 值解码为具体结构体.
func Convert(src, dst any) error {
	data, err := Marshal(src)
	if err != nil {
		return err
	}
	return API.Unmarshal(data, dst)
}
