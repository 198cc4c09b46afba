package cache

import "errors"

// 预定义错误.
var (
	// ErrNotFound 缓存键不存在.
	ErrNotFound = errors.New("cache: 缓存键不存在")

	// ErrNilConfig 缓存配置为空.
	ErrNilConfig = errors.New("cache: 缓存配置为空")

	// ErrEmptyAddr 缓存地址为空.
	ErrEmptyAddr = errors.New("cache: 缓存地址为空")

	// ErrUnsupported 不支持的缓存类型.
	ErrUnsupported = errors.New("cache: 不支持的缓存类型")

	// ErrNilLogger 日志记录器为空.
	ErrNilLogger = errors.New("cache: 日志记录器为空")

	// ErrSerialize 序列化值失败.
	ErrSerialize = errors.New("cache: 序列化值失败")

	// ErrConnect 连接失败.
	ErrConnect = errors.New("cache: 连接失败")

	// ErrClosed 缓存已关闭.
	ErrClosed = errors.New("cache: 缓存已关闭")
)

// ConfigError 配置字段错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cache: " + e.Field + ": " + e.Message
}
