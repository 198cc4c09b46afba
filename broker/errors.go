package broker

import (
	"errors"
	"fmt"
	"strings"
)

// 预定义错误.
//
// 所有错误均可通过 errors.Is 进行判断:
//
//	if errors.Is(err, broker.ErrNotConnected) {
//	    // 连接尚未建立
//	}
var (
	// ErrNotConnected 未连接到 Kafka 集群.
	ErrNotConnected = errors.New("broker: 未连接")

	// ErrConnect 建立连接失败.
	ErrConnect = errors.New("broker: 连接失败")

	// ErrPublish 消息发布失败.
	ErrPublish = errors.New("broker: 消息发布失败")

	// ErrBatchPublish 批量发布失败.
	ErrBatchPublish = errors.New("broker: 批量发布失败")

	// ErrTransaction 事务发布失败.
	ErrTransaction = errors.New("broker: 事务发布失败")

	// ErrHandler 消息处理器重试耗尽.
	ErrHandler = errors.New("broker: 消息处理失败")

	// ErrDecode 消息解码失败.
	ErrDecode = errors.New("broker: 消息解码失败")

	// ErrDeadLetter 死信投递失败.
	ErrDeadLetter = errors.New("broker: 死信投递失败")

	// ErrRetryAborted 重试等待期间上下文被取消.
	ErrRetryAborted = errors.New("broker: 重试已中止")

	// ErrEmptyEventID 事件ID为空.
	ErrEmptyEventID = errors.New("broker: 事件ID为空")

	// ErrNilEvent 事件为空.
	ErrNilEvent = errors.New("broker: 事件为空")

	// ErrEmptyTopic 主题为空.
	ErrEmptyTopic = errors.New("broker: 主题为空")

	// ErrNilHandler 消息处理器为空.
	ErrNilHandler = errors.New("broker: 消息处理器为空")

	// ErrInvalidConfig 配置无效.
	ErrInvalidConfig = errors.New("broker: 配置无效")
)

// ConnectivityError 连接错误.
//
// Op 为 connect 或 disconnect，Err 为底层原因.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("broker: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ErrConnect) 对所有连接错误成立.
func (e *ConnectivityError) Is(target error) bool {
	return target == ErrConnect
}

// PublishError 发布错误，Topics 为本次发布涉及的全部主题.
type PublishError struct {
	Topics []string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("broker: publish to [%s] failed: %v", strings.Join(e.Topics, ","), e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func (e *PublishError) Is(target error) bool {
	return target == ErrPublish
}

// HandlerError 消息处理器在重试耗尽后仍然失败.
//
// Err 为最后一次失败的错误，Errors 按顺序保存每次尝试的错误.
type HandlerError struct {
	Topic    string
	Attempts int
	Err      error
	Errors   []error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("broker: handler for %s failed after %d attempts: %v", e.Topic, e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool {
	return target == ErrHandler
}

// DecodeError 消息体无法解码为事件.
type DecodeError struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("broker: decode %s[%d]@%d failed: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// DeadLetterPublishError 死信事件发布失败.
type DeadLetterPublishError struct {
	OriginalTopic string
	Cause         error
	Err           error
}

func (e *DeadLetterPublishError) Error() string {
	return fmt.Sprintf("broker: dead-letter for %s failed: %v (cause: %v)", e.OriginalTopic, e.Err, e.Cause)
}

func (e *DeadLetterPublishError) Unwrap() error { return e.Err }

func (e *DeadLetterPublishError) Is(target error) bool {
	return target == ErrDeadLetter
}
