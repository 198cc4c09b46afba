package server

import (
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// HTTPOption HTTP 服务器配置选项.
type HTTPOption func(*httpOptions)

// httpOptions HTTP 服务器内部配置.
type httpOptions struct {
	name              string
	addr              string
	readTimeout       time.Duration
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	logger            logger.Logger
}

// defaultHTTPOptions 返回默认 HTTP 配置.
func defaultHTTPOptions() *httpOptions {
	return &httpOptions{
		name:              "http",
		addr:              ":3003",
		readTimeout:       15 * time.Second,
		readHeaderTimeout: 5 * time.Second,
		writeTimeout:      15 * time.Second,
		idleTimeout:       60 * time.Second,
	}
}

// WithHTTPName 设置 HTTP 服务器名称.
func WithHTTPName(name string) HTTPOption {
	return func(o *httpOptions) {
		o.name = name
	}
}

// WithHTTPAddr 设置 HTTP 监听地址.
func WithHTTPAddr(addr string) HTTPOption {
	return func(o *httpOptions) {
		o.addr = addr
	}
}

// WithHTTPReadTimeout 设置读取超时.
func WithHTTPReadTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithHTTPWriteTimeout 设置写入超时.
func WithHTTPWriteTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithHTTPIdleTimeout 设置空闲超时.
func WithHTTPIdleTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithHTTPLogger 设置日志记录器.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(o *httpOptions) {
		o.logger = log
	}
}
