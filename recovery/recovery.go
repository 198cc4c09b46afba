// Package recovery 提供 panic 恢复.
//
// HTTPMiddleware 用于 HTTP 处理链，Call 用于消息处理器与事务内的业务回调，
// 两者都把 panic 转换为携带堆栈的 *PanicError.
package recovery

import (
	"fmt"
	"runtime"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

const defaultStackSize = 64 * 1024

// Options 配置选项.
type Options struct {
	// Logger 日志记录器，必需.
	Logger logger.Logger

	// Collector 指标收集器，设置后记录 panic 次数.
	Collector metrics.Collector

	// StackSize 堆栈大小，默认 64KB.
	StackSize int
}

// Option 是配置函数.
type Option func(*Options)

// WithLogger 设置日志记录器.
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(c metrics.Collector) Option {
	return func(o *Options) {
		o.Collector = c
	}
}

// WithStackSize 设置堆栈大小.
func WithStackSize(size int) Option {
	return func(o *Options) {
		o.StackSize = size
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{StackSize: defaultStackSize}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func captureStack(size int) []byte {
	stack := make([]byte, size)
	n := runtime.Stack(stack, false)
	return stack[:n]
}

// Call 执行 fn，panic 转换为 *PanicError 返回.
func Call(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: captureStack(defaultStackSize)}
		}
	}()
	return fn()
}

// PanicError 表示 panic 错误.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 返回 panic 值本身是 error 时的原始错误.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
