package broker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/Tsukikage7/inventory-service/logger"
)

// Subscriber 事件订阅器.
//
// 所有订阅共享一个消费者组与一个消费循环，新增订阅时重启当前会话以加入新主题.
// 每个分区内消息按日志顺序处理，分区之间并发处理，并发数受信号量限制.
type Subscriber struct {
	conn     *Connection
	cfg      ConsumerConfig
	executor *RetryExecutor
	router   *DeadLetterRouter
	sem      *semaphore.Weighted
	logger   logger.Logger
	metrics  *brokerMetrics
	tracer   *brokerTracer

	handlersMu sync.RWMutex
	handlers   map[string]MessageHandler

	// mu 保护消费循环的生命周期
	mu        sync.Mutex
	running   bool
	stopLoop  context.CancelFunc
	genCancel context.CancelFunc
	wg        sync.WaitGroup

	marked atomic.Int64
}

// NewSubscriber 创建订阅器.
func NewSubscriber(conn *Connection, cfg ConsumerConfig, executor *RetryExecutor, router *DeadLetterRouter, log logger.Logger) *Subscriber {
	concurrency := cfg.PartitionsConsumedConcurrently
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Subscriber{
		conn:     conn,
		cfg:      cfg,
		executor: executor,
		router:   router,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		logger:   log,
		handlers: make(map[string]MessageHandler),
	}
}

// Subscribe 为主题注册处理器并确保消费循环运行.
//
// 同一主题重复订阅时后注册的处理器生效.
func (s *Subscriber) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if handler == nil {
		return ErrNilHandler
	}

	s.handlersMu.Lock()
	_, replaced := s.handlers[topic]
	s.handlers[topic] = handler
	s.handlersMu.Unlock()

	if replaced && s.logger != nil {
		s.logger.With(logger.String("topic", topic)).Warn("[Broker] 主题处理器已被替换")
	}

	if err := s.conn.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		if err := s.startLocked(ctx); err != nil {
			return err
		}
	} else if !replaced && s.genCancel != nil {
		// 结束当前会话，消费循环以新的主题列表重新加入
		s.genCancel()
	}

	if s.logger != nil {
		s.logger.With(
			logger.String("topic", topic),
			logger.String("groupId", s.cfg.GroupID),
		).Info("[Broker] 已订阅主题")
	}
	return nil
}

// Resume 在重新连接后恢复已有订阅的消费.
func (s *Subscriber) Resume(ctx context.Context) error {
	if len(s.Topics()) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	return s.startLocked(ctx)
}

// Stop 停止消费循环并等待其退出.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stopLoop()
	s.mu.Unlock()

	s.wg.Wait()
}

// Topics 返回已订阅的主题，按名称排序.
func (s *Subscriber) Topics() []string {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	topics := make([]string, 0, len(s.handlers))
	for topic := range s.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (s *Subscriber) handler(topic string) MessageHandler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[topic]
}

// startLocked 启动消费循环，调用方需持有 s.mu.
func (s *Subscriber) startLocked(ctx context.Context) error {
	group, err := s.conn.ConsumerGroup()
	if err != nil {
		return &ConnectivityError{Op: "subscribe", Err: err}
	}

	// 消费循环的生命周期独立于调用方的请求上下文
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopLoop = cancel
	s.running = true

	s.wg.Add(2)
	go s.consumeLoop(loopCtx, group)
	go s.drainErrors(loopCtx, group)
	return nil
}

// consumeLoop 消费循环.
//
// 每次 group.Consume 返回（重平衡、订阅变更或错误）后重新加入，
// 消费者组被关闭或循环被停止时退出.
func (s *Subscriber) consumeLoop(ctx context.Context, group sarama.ConsumerGroup) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.genCancel = nil
		s.stopLoop()
		s.mu.Unlock()
	}()
	defer s.recoverPanic("消费循环")

	for {
		s.mu.Lock()
		topics := s.Topics()
		genCtx, cancel := context.WithCancel(ctx)
		s.genCancel = cancel
		s.mu.Unlock()

		err := group.Consume(genCtx, topics, s)
		cancel()

		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			return
		}
		if err != nil {
			if s.logger != nil {
				s.logger.With(
					logger.Any("topics", topics),
					logger.Duration("retryIn", s.cfg.ReconnectInterval),
					logger.Err(err),
				).Error("[Broker] 消费会话失败")
			}
			if sleepContext(ctx, s.cfg.ReconnectInterval) != nil {
				return
			}
		}
	}
}

// drainErrors 记录消费者组的异步错误.
func (s *Subscriber) drainErrors(ctx context.Context, group sarama.ConsumerGroup) {
	defer s.wg.Done()
	defer s.recoverPanic("错误监听")
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-group.Errors():
			if !ok {
				return
			}
			if s.logger != nil {
				s.logger.With(logger.Err(err)).Warn("[Broker] 消费者组错误")
			}
		}
	}
}

// Setup 实现 sarama.ConsumerGroupHandler.
func (s *Subscriber) Setup(session sarama.ConsumerGroupSession) error {
	if s.logger != nil {
		s.logger.With(
			logger.Any("claims", session.Claims()),
			logger.Int32("generation", session.GenerationID()),
		).Debug("[Broker] 消费会话开始")
	}
	return nil
}

// Cleanup 实现 sarama.ConsumerGroupHandler，提交已标记的偏移量.
func (s *Subscriber) Cleanup(session sarama.ConsumerGroupSession) error {
	session.Commit()
	return nil
}

// ConsumeClaim 实现 sarama.ConsumerGroupHandler，按顺序处理单个分区的消息.
func (s *Subscriber) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			s.processMessage(session, msg)
			s.sem.Release(1)

		case <-ctx.Done():
			return nil
		}
	}
}

// processMessage 处理单条消息：解码、查找处理器、重试执行、死信投递、标记偏移量.
func (s *Subscriber) processMessage(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	startTime := time.Now()
	ctx := session.Context()

	var span trace.Span
	if s.tracer != nil {
		ctx = s.tracer.extractContext(ctx, consumerHeaders(msg))
		ctx, span = s.tracer.startConsumerSpan(ctx, msg.Topic, msg.Partition, msg.Offset)
		defer span.End()
	}

	event, err := decodeEvent(msg.Value)
	if err != nil {
		decodeErr := &DecodeError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
		setSpanError(span, decodeErr)
		s.drop(msg, "decode", decodeErr)
		s.mark(session, msg)
		return
	}
	ctx = logger.ContextWithEventID(ctx, event.ID)

	handler := s.handler(msg.Topic)
	if handler == nil {
		s.drop(msg, "no_handler", nil)
		s.mark(session, msg)
		return
	}

	err = s.executor.Execute(ctx, msg.Topic, event, handler)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.RecordConsume(msg.Topic, time.Since(startTime))
		}
	case errors.Is(err, ErrRetryAborted):
		// 会话结束，不提交偏移量，消息将在下次分配后重新投递
		if s.logger != nil {
			s.logger.With(
				logger.String("topic", msg.Topic),
				logger.Int32("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
			).Info("[Broker] 消费停止，放弃重试")
		}
		return
	default:
		setSpanError(span, err)
		if s.metrics != nil {
			s.metrics.RecordConsumeError(msg.Topic)
		}
		cause := err
		var handlerErr *HandlerError
		if errors.As(err, &handlerErr) {
			cause = handlerErr.Err
		}
		if s.logger != nil {
			s.logger.With(
				logger.String("topic", msg.Topic),
				logger.String("eventId", event.ID),
				logger.Int32("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Err(err),
			).Error("[Broker] 消息处理失败，重试耗尽")
		}
		if s.router != nil {
			// 会话在最后一次尝试期间结束时仍须投递死信，发送耗时由 SendTimeout 约束
			s.router.Route(context.WithoutCancel(ctx), FailedMessage{
				Topic:     msg.Topic,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				Key:       msg.Key,
				Value:     msg.Value,
			}, cause)
		}
	}

	s.mark(session, msg)
}

// mark 标记偏移量，每累计 AutoCommitThreshold 条主动提交一次.
func (s *Subscriber) mark(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	session.MarkMessage(msg, "")
	if threshold := int64(s.cfg.AutoCommitThreshold); threshold > 0 && s.marked.Add(1)%threshold == 0 {
		session.Commit()
	}
}

func (s *Subscriber) drop(msg *sarama.ConsumerMessage, reason string, err error) {
	if s.metrics != nil {
		s.metrics.RecordDrop(msg.Topic, reason)
	}
	if s.logger != nil {
		fields := []logger.Field{
			logger.String("topic", msg.Topic),
			logger.String("reason", reason),
			logger.Int32("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
		}
		if err != nil {
			fields = append(fields, logger.Err(err))
		}
		s.logger.With(fields...).Warn("[Broker] 消息已丢弃")
	}
}

// recoverPanic 恢复 goroutine panic 并记录日志.
func (s *Subscriber) recoverPanic(goroutineName string) {
	if r := recover(); r != nil {
		if s.logger != nil {
			s.logger.With(
				logger.String("goroutine", goroutineName),
				logger.Any("panic", r),
			).Error("[Broker] goroutine panic")
		}
	}
}
