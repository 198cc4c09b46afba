package broker

import (
	"context"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// 死信事件常量.
const (
	DeadLetterSuffix       = ".dlq"
	DeadLetterEventType    = "message.failed"
	DeadLetterEventVersion = "1.0"
	unknownEventID         = "unknown"
)

// DeadLetterTopic 返回主题对应的死信主题.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}

// FailedMessage 重试耗尽的原始消息.
type FailedMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// DeadLetterData 死信事件的数据部分.
type DeadLetterData struct {
	OriginalTopic   string `json:"originalTopic"`
	Partition       int32  `json:"partition"`
	Offset          int64  `json:"offset"`
	Error           string `json:"error"`
	OriginalMessage string `json:"originalMessage"`
}

// DeadLetterFailure 死信投递失败的观测记录.
type DeadLetterFailure struct {
	Message FailedMessage
	Cause   error
	Err     error
}

// NewDeadLetterEvent 根据失败消息构建死信事件.
//
// 事件ID取原始消息键，键为空时为 "unknown".
func NewDeadLetterEvent(source string, msg FailedMessage, cause error) *Event {
	id := string(msg.Key)
	if id == "" {
		id = unknownEventID
	}
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	return &Event{
		ID:        id,
		Type:      DeadLetterEventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Version:   DeadLetterEventVersion,
		Data: DeadLetterData{
			OriginalTopic:   msg.Topic,
			Partition:       msg.Partition,
			Offset:          msg.Offset,
			Error:           causeText,
			OriginalMessage: string(msg.Value),
		},
	}
}

// DeadLetterRouter 将重试耗尽的消息投递到死信主题.
//
// 投递失败不会返回给消费循环，也不会重试，而是记录错误日志、
// 增加 broker_dlq_publish_errors_total 并回调失败钩子.
type DeadLetterRouter struct {
	publisher EventPublisher
	source    string
	logger    logger.Logger
	metrics   *brokerMetrics
	onFailure func(DeadLetterFailure)
}

// NewDeadLetterRouter 创建死信路由器.
func NewDeadLetterRouter(publisher EventPublisher, source string, log logger.Logger) *DeadLetterRouter {
	return &DeadLetterRouter{
		publisher: publisher,
		source:    source,
		logger:    log,
	}
}

// Route 投递死信事件.
func (r *DeadLetterRouter) Route(ctx context.Context, msg FailedMessage, cause error) {
	dlqTopic := DeadLetterTopic(msg.Topic)
	event := NewDeadLetterEvent(r.source, msg, cause)

	if err := r.publisher.Publish(ctx, dlqTopic, event); err != nil {
		r.reportFailure(msg, cause, err)
		return
	}

	if r.metrics != nil {
		r.metrics.RecordDLQ(msg.Topic)
	}
	if r.logger != nil {
		r.logger.With(
			logger.String("originalTopic", msg.Topic),
			logger.String("dlqTopic", dlqTopic),
			logger.Int32("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
		).Warn("[Broker] 消息已投递到死信主题")
	}
}

// reportFailure 投递失败的观测步骤.
func (r *DeadLetterRouter) reportFailure(msg FailedMessage, cause, err error) {
	failure := DeadLetterFailure{
		Message: msg,
		Cause:   cause,
		Err:     &DeadLetterPublishError{OriginalTopic: msg.Topic, Cause: cause, Err: err},
	}

	if r.metrics != nil {
		r.metrics.RecordDLQError(msg.Topic)
	}
	if r.logger != nil {
		r.logger.With(
			logger.String("originalTopic", msg.Topic),
			logger.Int32("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Any("cause", cause),
			logger.Err(failure.Err),
		).Error("[Broker] 死信投递失败")
	}
	if r.onFailure != nil {
		r.onFailure(failure)
	}
}
