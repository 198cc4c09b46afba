package idempotency

import (
	"time"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

// KeyFunc 从事件中提取幂等键.
type KeyFunc func(event *broker.Event) string

// Option 配置选项函数.
type Option func(*options)

type options struct {
	keyFunc     KeyFunc
	ttl         time.Duration
	lockTimeout time.Duration
	logger      logger.Logger
	collector   metrics.Collector
	skipOnError bool
}

func defaultOptions() *options {
	return &options{
		keyFunc:     EventIDKey,
		ttl:         DefaultTTL,
		lockTimeout: DefaultLockTimeout,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EventIDKey 以事件类型与事件ID作为幂等键.
func EventIDKey(event *broker.Event) string {
	if event == nil || event.ID == "" {
		return ""
	}
	return event.Type + ":" + event.ID
}

// WithKeyFunc 设置幂等键提取函数，默认 EventIDKey.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		o.keyFunc = fn
	}
}

// WithTTL 设置完成标记的过期时间.
//
// 默认 24 小时，应大于消息可能被重复投递的时间窗口.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithLockTimeout 设置处理锁超时时间.
//
// 默认 30 秒，应大于单次处理的最长耗时.
func WithLockTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = timeout
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithMetrics 记录 idempotency_duplicates_total 与 idempotency_store_errors_total.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// WithSkipOnError 设置存储错误时是否跳过幂等检查.
//
// 为 true 时存储失败仍执行处理器，默认返回错误交给重试执行器.
func WithSkipOnError(skip bool) Option {
	return func(o *options) {
		o.skipOnError = skip
	}
}
