// Package broker 提供基于 Kafka 的事件发布与订阅.
//
// Broker 是显式创建、按引用传递的上下文对象，统一管理连接、发布、订阅与死信投递:
//
//	b, err := broker.New(cfg,
//	    broker.WithLogger(log),
//	    broker.WithMetrics(collector),
//	    broker.WithTracing("inventory-service"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := b.Connect(ctx); err != nil {
//	    return err
//	}
//	defer b.Disconnect(context.Background())
//
//	_ = b.Subscribe(ctx, "inventory.adjustments", broker.HandlerFunc(func(ctx context.Context, e *broker.Event) error {
//	    return nil
//	}))
//
// 语义为至少一次投递：处理器失败按 RetryPolicy 重试，重试耗尽后投递到 <topic>.dlq 并提交偏移量.
package broker

import (
	"context"
	"errors"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

// Option 配置选项.
type Option func(*options)

type options struct {
	logger      logger.Logger
	collector   metrics.Collector
	serviceName string
	dialer      Dialer
	onDLQFail   func(DeadLetterFailure)
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithMetrics 启用指标.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

// WithTracing 启用链路追踪，使用全局 TracerProvider.
func WithTracing(serviceName string) Option {
	return func(o *options) {
		o.serviceName = serviceName
	}
}

// WithDialer 替换 sarama 客户端的创建方式.
func WithDialer(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// WithDeadLetterFailureHook 设置死信投递失败回调.
//
// 回调在消费 goroutine 中同步执行，不应阻塞.
func WithDeadLetterFailureHook(fn func(DeadLetterFailure)) Option {
	return func(o *options) {
		o.onDLQFail = fn
	}
}

// Broker 消息代理.
type Broker struct {
	cfg        *Config
	conn       *Connection
	publisher  *Publisher
	subscriber *Subscriber
	router     *DeadLetterRouter
	executor   *RetryExecutor
	logger     logger.Logger
}

var _ Port = (*Broker)(nil)

// New 创建消息代理，不会建立连接.
func New(cfg *Config, opts ...Option) (*Broker, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var (
		bm *brokerMetrics
		bt *brokerTracer
	)
	if o.collector != nil {
		bm = newBrokerMetrics(o.collector, cfg.Consumer.GroupID)
	}
	if o.serviceName != "" {
		bt = newBrokerTracer(o.serviceName)
	}

	conn := NewConnection(cfg, o.dialer, o.logger)
	conn.metrics = bm

	publisher := NewPublisher(conn, cfg.SendTimeout, o.logger)
	publisher.metrics = bm
	publisher.tracer = bt

	router := NewDeadLetterRouter(publisher, cfg.ClientID, o.logger)
	router.metrics = bm
	router.onFailure = o.onDLQFail

	executor := NewRetryExecutor(cfg.Consumer.Retry, o.logger)
	executor.metrics = bm

	subscriber := NewSubscriber(conn, cfg.Consumer, executor, router, o.logger)
	subscriber.metrics = bm
	subscriber.tracer = bt

	return &Broker{
		cfg:        cfg,
		conn:       conn,
		publisher:  publisher,
		subscriber: subscriber,
		router:     router,
		executor:   executor,
		logger:     o.logger,
	}, nil
}

// MustNew 创建消息代理，失败时 panic.
func MustNew(cfg *Config, opts ...Option) *Broker {
	b, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Config 返回生效的配置.
func (b *Broker) Config() *Config {
	return b.cfg
}

// Connect 建立连接并恢复已有订阅.
func (b *Broker) Connect(ctx context.Context) error {
	if err := b.conn.Connect(ctx); err != nil {
		return err
	}
	return b.subscriber.Resume(ctx)
}

// Disconnect 停止消费并断开连接.
func (b *Broker) Disconnect(ctx context.Context) error {
	b.subscriber.Stop()
	if err := b.conn.Disconnect(ctx); err != nil {
		return &ConnectivityError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsHealthy 是否已连接.
func (b *Broker) IsHealthy() bool {
	return b.conn.IsHealthy()
}

// State 返回连接状态.
func (b *Broker) State() State {
	return b.conn.State()
}

// Publish 发布单个事件.
func (b *Broker) Publish(ctx context.Context, topic string, event *Event) error {
	return b.publisher.Publish(ctx, topic, event)
}

// PublishBatch 批量发布事件.
func (b *Broker) PublishBatch(ctx context.Context, events []TopicEvent) error {
	return b.publisher.PublishBatch(ctx, events)
}

// PublishInTransaction 在事务内执行 work 并发布事件.
func (b *Broker) PublishInTransaction(ctx context.Context, topic string, event *Event, work func(ctx context.Context) error) error {
	return b.publisher.PublishInTransaction(ctx, topic, event, work)
}

// Subscribe 订阅主题.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	return b.subscriber.Subscribe(ctx, topic, handler)
}

// Topics 返回已订阅的主题.
func (b *Broker) Topics() []string {
	return b.subscriber.Topics()
}

// HealthCheck 健康检查，未连接时返回 ErrNotConnected.
func (b *Broker) HealthCheck(_ context.Context) error {
	if !b.conn.IsHealthy() {
		return errors.Join(ErrNotConnected, errors.New("state: "+b.conn.State().String()))
	}
	return nil
}
