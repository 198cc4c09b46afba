package broker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

// Event 经由 Kafka 传输的领域事件.
//
// ID 同时作为分区键，同一 ID 的事件落在同一分区并保持顺序.
// 发布时 Data 可以是任意可序列化的值；消费时 Data 为通用 JSON 值，
// 需通过 DecodeData 绑定到具体类型.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Data      any       `json:"data"`
}

// NewEvent 创建事件，ID 使用 UUIDv7，时间戳为当前 UTC 时间.
func NewEvent(eventType, source, version string, data any) *Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Event{
		ID:        id.String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   version,
		Data:      data,
	}
}

// Validate 校验事件可发布.
func (e *Event) Validate() error {
	if e == nil {
		return ErrNilEvent
	}
	if e.ID == "" {
		return ErrEmptyEventID
	}
	return nil
}

// DecodeData 将 Data 绑定到 v.
func (e *Event) DecodeData(v any) error {
	if e == nil {
		return ErrNilEvent
	}
	return jsoncodec.Convert(e.Data, v)
}

// TopicEvent 批量发布中的主题与事件.
type TopicEvent struct {
	Topic string
	Event *Event
}

// MessageHandler 消息处理器.
//
// 返回错误会触发重试，重试耗尽后事件被投递到死信主题.
type MessageHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// HandlerFunc 将普通函数适配为 MessageHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// Handle 实现 MessageHandler.
func (f HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventPublisher 事件发布接口.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	PublishBatch(ctx context.Context, events []TopicEvent) error
}

// Transactor 事务发布接口.
//
// work 在 Kafka 事务内执行，仅当 work 成功时事件才会随事务提交.
type Transactor interface {
	PublishInTransaction(ctx context.Context, topic string, event *Event, work func(ctx context.Context) error) error
}

// Port 供业务层依赖的消息代理端口.
type Port interface {
	EventPublisher
	Transactor
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	IsHealthy() bool
}

// PublishWithTransaction 在事务内执行 work 并发布事件，返回 work 的结果.
//
// work 失败时事务回滚，返回 work 的原始错误.
func PublishWithTransaction[T any](ctx context.Context, tx Transactor, topic string, event *Event, work func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := tx.PublishInTransaction(ctx, topic, event, func(ctx context.Context) error {
		r, err := work(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
