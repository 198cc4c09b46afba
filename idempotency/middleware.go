package idempotency

import (
	"context"
	"fmt"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/logger"
)

// Middleware 返回幂等消息处理中间件.
//
// 已完成的事件直接返回 nil，使偏移量正常提交.
// 正在被其他消费者处理的事件返回 ErrInProgress，由重试执行器稍后再次尝试.
// 无法提取幂等键的事件不做幂等控制.
func Middleware(store Store, opts ...Option) func(broker.MessageHandler) broker.MessageHandler {
	if store == nil {
		panic(ErrNilStore)
	}
	o := applyOptions(opts)

	return func(next broker.MessageHandler) broker.MessageHandler {
		return broker.HandlerFunc(func(ctx context.Context, event *broker.Event) error {
			key := o.keyFunc(event)
			if key == "" {
				return next.Handle(ctx, event)
			}

			status, err := store.Acquire(ctx, key, o.lockTimeout)
			if err != nil {
				o.storeError(event, "acquire", err)
				if o.skipOnError {
					return next.Handle(ctx, event)
				}
				return fmt.Errorf("acquire idempotency key %q: %w", key, err)
			}

			switch status {
			case StatusDone:
				o.duplicate(event, status)
				return nil
			case StatusInProgress:
				o.duplicate(event, status)
				return ErrInProgress
			}

			if err := next.Handle(ctx, event); err != nil {
				// 使用独立上下文，处理器超时后仍能释放锁
				if relErr := store.Release(context.WithoutCancel(ctx), key); relErr != nil {
					o.storeError(event, "release", relErr)
				}
				return err
			}

			if err := store.Complete(context.WithoutCancel(ctx), key, o.ttl); err != nil {
				o.storeError(event, "complete", err)
			}
			return nil
		})
	}
}

func (o *options) duplicate(event *broker.Event, status Status) {
	if o.collector != nil {
		o.collector.Counter("idempotency_duplicates_total", map[string]string{
			"event_type": event.Type,
			"status":     status.String(),
		})
	}
	if o.logger != nil {
		o.logger.With(
			logger.String("eventId", event.ID),
			logger.String("eventType", event.Type),
			logger.String("status", status.String()),
		).Info("[Idempotency] 重复事件已跳过")
	}
}

func (o *options) storeError(event *broker.Event, op string, err error) {
	if o.collector != nil {
		o.collector.Counter("idempotency_store_errors_total", map[string]string{"op": op})
	}
	if o.logger != nil {
		o.logger.With(
			logger.String("eventId", event.ID),
			logger.String("op", op),
			logger.Bool("skipOnError", o.skipOnError),
			logger.Err(err),
		).Error("[Idempotency] 幂等存储操作失败")
	}
}
