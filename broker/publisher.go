package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/recovery"
)

// Publisher 事件发布器.
//
// 未连接时立即失败，不会隐式建立连接.
// 单条与批量发布使用幂等生产者，事务发布使用独立的事务生产者并串行执行.
type Publisher struct {
	conn        *Connection
	sendTimeout time.Duration
	logger      logger.Logger
	metrics     *brokerMetrics
	tracer      *brokerTracer

	// txnMu 事务生产者同一时刻只能有一个进行中的事务
	txnMu sync.Mutex
}

// NewPublisher 创建发布器.
func NewPublisher(conn *Connection, sendTimeout time.Duration, log logger.Logger) *Publisher {
	return &Publisher{
		conn:        conn,
		sendTimeout: sendTimeout,
		logger:      log,
	}
}

// Publish 发布单个事件.
func (p *Publisher) Publish(ctx context.Context, topic string, event *Event) error {
	if !p.conn.IsHealthy() {
		return &ConnectivityError{Op: "publish", Err: ErrNotConnected}
	}
	if err := validatePublish(topic, event); err != nil {
		return err
	}
	producer, err := p.conn.Producer()
	if err != nil {
		return &ConnectivityError{Op: "publish", Err: err}
	}

	startTime := time.Now()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.startProducerSpan(ctx, "publish", topic)
		defer span.End()
	}

	msg, err := p.buildMessage(ctx, topic, event)
	if err != nil {
		return &PublishError{Topics: []string{topic}, Err: err}
	}

	if err := p.send(ctx, func() error {
		_, _, err := producer.SendMessage(msg)
		return err
	}); err != nil {
		setSpanError(span, err)
		p.recordError(topic, "single")
		if p.logger != nil {
			p.logger.With(
				logger.String("topic", topic),
				logger.String("eventId", event.ID),
				logger.String("eventType", event.Type),
				logger.Err(err),
			).Error("[Broker] 事件发布失败")
		}
		return &PublishError{Topics: []string{topic}, Err: err}
	}

	if p.metrics != nil {
		p.metrics.RecordPublish(topic, time.Since(startTime))
	}
	if p.logger != nil {
		p.logger.With(
			logger.String("topic", topic),
			logger.String("eventId", event.ID),
			logger.String("eventType", event.Type),
		).Debug("[Broker] 事件已发布")
	}
	return nil
}

// PublishBatch 一次往返发布多个事件，要么全部成功要么整体失败.
//
// 失败时返回一个 *PublishError，Topics 包含批次中的全部主题.
func (p *Publisher) PublishBatch(ctx context.Context, events []TopicEvent) error {
	if len(events) == 0 {
		return nil
	}
	if !p.conn.IsHealthy() {
		return &ConnectivityError{Op: "publish batch", Err: ErrNotConnected}
	}
	for _, te := range events {
		if err := validatePublish(te.Topic, te.Event); err != nil {
			return err
		}
	}
	producer, err := p.conn.Producer()
	if err != nil {
		return &ConnectivityError{Op: "publish batch", Err: err}
	}

	topics := distinctTopics(events)
	startTime := time.Now()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.startProducerSpan(ctx, "publish_batch", topics...)
		defer span.End()
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, te := range events {
		msg, err := p.buildMessage(ctx, te.Topic, te.Event)
		if err != nil {
			return &PublishError{Topics: topics, Err: fmt.Errorf("%w: %w", ErrBatchPublish, err)}
		}
		msgs = append(msgs, msg)
	}

	if err := p.send(ctx, func() error {
		return producer.SendMessages(msgs)
	}); err != nil {
		setSpanError(span, err)
		for _, topic := range topics {
			p.recordError(topic, "batch")
		}
		if p.logger != nil {
			p.logger.With(
				logger.Any("topics", topics),
				logger.Int("count", len(events)),
				logger.Err(err),
			).Error("[Broker] 批量发布失败")
		}
		return &PublishError{Topics: topics, Err: fmt.Errorf("%w: %w", ErrBatchPublish, err)}
	}

	if p.metrics != nil {
		perMessage := time.Since(startTime) / time.Duration(len(events))
		for _, te := range events {
			p.metrics.RecordPublish(te.Topic, perMessage)
		}
	}
	return nil
}

// PublishInTransaction 在 Kafka 事务内执行 work 并发布事件.
//
// 顺序为 BeginTxn、work、发送、CommitTxn，任一步失败都会 AbortTxn.
// work 的错误原样返回，发送与提交错误包装为 *PublishError.
func (p *Publisher) PublishInTransaction(ctx context.Context, topic string, event *Event, work func(ctx context.Context) error) error {
	if !p.conn.IsHealthy() {
		return &ConnectivityError{Op: "publish transaction", Err: ErrNotConnected}
	}
	if err := validatePublish(topic, event); err != nil {
		return err
	}
	producer, err := p.conn.TransactionalProducer()
	if err != nil {
		return &ConnectivityError{Op: "publish transaction", Err: err}
	}

	startTime := time.Now()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.startProducerSpan(ctx, "publish_transaction", topic)
		defer span.End()
	}

	p.txnMu.Lock()
	defer p.txnMu.Unlock()

	txnErr := func(stage string, err error) error {
		setSpanError(span, err)
		p.recordError(topic, "transaction")
		if p.logger != nil {
			p.logger.With(
				logger.String("topic", topic),
				logger.String("eventId", event.ID),
				logger.String("stage", stage),
				logger.Err(err),
			).Error("[Broker] 事务发布失败")
		}
		return &PublishError{Topics: []string{topic}, Err: fmt.Errorf("%w: %s: %w", ErrTransaction, stage, err)}
	}

	if err := producer.BeginTxn(); err != nil {
		return txnErr("begin", err)
	}

	if work != nil {
		if err := p.runWork(ctx, work); err != nil {
			p.abort(producer, topic)
			setSpanError(span, err)
			return err
		}
	}

	msg, err := p.buildMessage(ctx, topic, event)
	if err != nil {
		p.abort(producer, topic)
		return txnErr("encode", err)
	}

	if err := p.send(ctx, func() error {
		_, _, err := producer.SendMessage(msg)
		return err
	}); err != nil {
		p.abort(producer, topic)
		return txnErr("send", err)
	}

	if err := producer.CommitTxn(); err != nil {
		p.abort(producer, topic)
		return txnErr("commit", err)
	}

	if p.metrics != nil {
		p.metrics.RecordPublish(topic, time.Since(startTime))
	}
	return nil
}

// runWork 执行事务内的业务逻辑，panic 转换为错误，事务随后被中止.
func (p *Publisher) runWork(ctx context.Context, work func(ctx context.Context) error) error {
	return recovery.Call(func() error {
		return work(ctx)
	})
}

// abort 中止事务，失败只记录日志.
func (p *Publisher) abort(producer sarama.SyncProducer, topic string) {
	if producer.TxnStatus()&sarama.ProducerTxnFlagInTransaction == 0 &&
		producer.TxnStatus()&sarama.ProducerTxnFlagInError == 0 {
		return
	}
	if err := producer.AbortTxn(); err != nil && p.logger != nil {
		p.logger.With(
			logger.String("topic", topic),
			logger.Err(err),
		).Error("[Broker] 事务中止失败")
	}
}

// send 执行发送，受 SendTimeout 与 ctx 约束.
func (p *Publisher) send(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.sendTimeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(p.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("send timed out after %s: %w", p.sendTimeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildMessage 编码事件并注入追踪上下文.
func (p *Publisher) buildMessage(ctx context.Context, topic string, event *Event) (*sarama.ProducerMessage, error) {
	key, value, headers, err := encodeEvent(event)
	if err != nil {
		return nil, err
	}
	if p.tracer != nil {
		p.tracer.injectHeaders(ctx, headers)
	}
	return buildProducerMessage(topic, key, value, headers), nil
}

func (p *Publisher) recordError(topic, mode string) {
	if p.metrics != nil {
		p.metrics.RecordPublishError(topic, mode)
	}
}

func validatePublish(topic string, event *Event) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	return event.Validate()
}

// distinctTopics 按首次出现顺序去重.
func distinctTopics(events []TopicEvent) []string {
	seen := make(map[string]struct{}, len(events))
	topics := make([]string, 0, len(events))
	for _, te := range events {
		if _, ok := seen[te.Topic]; ok {
			continue
		}
		seen[te.Topic] = struct{}{}
		topics = append(topics, te.Topic)
	}
	return topics
}
