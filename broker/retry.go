package broker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/recovery"
)

// RetryPolicy 消息处理重试策略.
//
// 第 n 次失败后（n 从 1 开始）等待 BaseDelay * Multiplier^n 再重试，
// 默认策略 {3, 1s, 2} 的等待序列为 2s、4s.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// DefaultRetryPolicy 返回默认重试策略.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Backoff 返回 failures 次失败后的等待时间.
func (p RetryPolicy) Backoff(failures int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(failures)))
}

// sleepFunc 可取消的等待.
type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext 基于定时器等待，ctx 取消时提前返回.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryExecutor 按策略执行消息处理器.
type RetryExecutor struct {
	policy  RetryPolicy
	sleep   sleepFunc
	logger  logger.Logger
	metrics *brokerMetrics
}

// NewRetryExecutor 创建重试执行器.
func NewRetryExecutor(policy RetryPolicy, log logger.Logger) *RetryExecutor {
	return &RetryExecutor{
		policy: policy.withDefaults(),
		sleep:  sleepContext,
		logger: log,
	}
}

// Policy 返回生效的重试策略.
func (r *RetryExecutor) Policy() RetryPolicy {
	return r.policy
}

// Execute 执行处理器直到成功或重试耗尽.
//
// 重试耗尽返回 *HandlerError；等待期间 ctx 被取消返回 ErrRetryAborted，
// 调用方不应提交该消息的偏移量.
func (r *RetryExecutor) Execute(ctx context.Context, topic string, event *Event, handler MessageHandler) error {
	var errs []error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := r.invoke(ctx, handler, event)
		if err == nil {
			return nil
		}
		errs = append(errs, err)

		if attempt == r.policy.MaxAttempts {
			break
		}

		backoff := r.policy.Backoff(attempt)
		if r.metrics != nil {
			r.metrics.RecordRetry(topic)
		}
		if r.logger != nil {
			r.logger.With(
				logger.String("topic", topic),
				logger.String("eventId", event.ID),
				logger.Int("attempt", attempt),
				logger.Int("maxAttempts", r.policy.MaxAttempts),
				logger.Duration("backoff", backoff),
				logger.Err(err),
			).Warn("[Broker] 消息处理失败，即将重试")
		}
		if sleepErr := r.sleep(ctx, backoff); sleepErr != nil {
			return fmt.Errorf("%w: %w", ErrRetryAborted, sleepErr)
		}
	}

	return &HandlerError{
		Topic:    topic,
		Attempts: len(errs),
		Err:      errs[len(errs)-1],
		Errors:   errs,
	}
}

// invoke 调用处理器，panic 转换为 *recovery.PanicError.
func (r *RetryExecutor) invoke(ctx context.Context, handler MessageHandler, event *Event) error {
	return recovery.Call(func() error {
		return handler.Handle(ctx, event)
	})
}
