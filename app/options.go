package app

import (
	"os"
	"syscall"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// options 内部配置.
type options struct {
	name            string
	version         string
	logger          logger.Logger
	hooks           *Hooks
	gracefulTimeout time.Duration
	signals         []os.Signal
	cleanups        []Cleanup
}

func defaultOptions() *options {
	return &options{
		name:            "inventory-service",
		version:         "1.0.0",
		gracefulTimeout: 10 * time.Second,
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Option 配置选项.
type Option func(*options)

// Name 设置应用名称.
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Version 设置应用版本.
func Version(version string) Option {
	return func(o *options) { o.version = version }
}

// Logger 设置日志记录器（必需）.
func Logger(log logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

// SetHooks 设置生命周期钩子.
func SetHooks(hooks *Hooks) Option {
	return func(o *options) { o.hooks = hooks }
}

// GracefulTimeout 设置优雅关闭超时时间.
func GracefulTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// Signals 替换监听的系统信号，默认 SIGINT 与 SIGTERM.
func Signals(signals ...os.Signal) Option {
	return func(o *options) {
		if len(signals) > 0 {
			o.signals = signals
		}
	}
}
