// Package logger 提供结构化日志记录功能.
//
// 所有组件通过 Logger 接口记录日志，底层由 zap 实现.
// 日志消息约定以组件前缀开头，例如 "[Broker]"、"[Inventory]".
package logger

import "context"

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// 输出目标常量.
const (
	OutputConsole = "console"
	OutputFile    = "file"
	OutputBoth    = "both"
)

// Field 表示一个日志字段.
type Field struct {
	Key   string
	Value any
}

// Logger 日志记录器接口.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	// With 返回附加了字段的子 logger.
	With(fields ...Field) Logger
	// WithContext 返回附加了 context 中 traceId、spanId、eventId 的子 logger.
	WithContext(ctx context.Context) Logger

	Sync() error
	Close() error
}

// NewLogger 创建 logger 实例.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	return newZapLogger(config)
}

// MustNewLogger 创建 logger 实例，失败时 panic.
func MustNewLogger(config *Config) Logger {
	l, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return l
}
