package jsoncodec

import "errors"

// ErrEmptyInput 输入为空.
var ErrEmptyInput = errors.New("jsoncodec: 输入为空")
