package server

import (
	"errors"
	"fmt"
)

// 启动参数错误.
var (
	ErrServerRunning = errors.New("server: already running")
	ErrAddrEmpty     = errors.New("server: listen address is empty")
	ErrNilHandler    = errors.New("server: nil handler")
)

// ListenError 监听地址失败，常见原因是端口被占用.
type ListenError struct {
	Server string
	Addr   string
	Err    error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("server: %s listen %s: %v", e.Server, e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}
