package broker

import (
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/inventory-service/jsoncodec"
)

// 消息头.
const (
	HeaderMessageType   = "message-type"
	HeaderSource        = "source"
	HeaderVersion       = "version"
	HeaderTimestamp     = "timestamp"
	HeaderCorrelationID = "correlation-id"
)

// timestampLayout ISO-8601，毫秒精度，UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// encodeEvent 将事件编码为消息键、消息体和消息头.
func encodeEvent(event *Event) (key []byte, value []byte, headers map[string]string, err error) {
	value, err = jsoncodec.Marshal(event)
	if err != nil {
		return nil, nil, nil, err
	}
	headers = map[string]string{
		HeaderMessageType:   event.Type,
		HeaderSource:        event.Source,
		HeaderVersion:       event.Version,
		HeaderTimestamp:     formatTimestamp(event.Timestamp),
		HeaderCorrelationID: event.ID,
	}
	return []byte(event.ID), value, headers, nil
}

// decodeEvent 从消息体解码事件，缺少 id 的信封视为解码失败.
func decodeEvent(value []byte) (*Event, error) {
	if len(strings.TrimSpace(string(value))) == 0 {
		return nil, jsoncodec.ErrEmptyInput
	}
	var event Event
	if err := jsoncodec.Unmarshal(value, &event); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

// formatTimestamp 格式化为 UTC ISO-8601，零值使用当前时间.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

// buildProducerMessage 构建 sarama 消息.
func buildProducerMessage(topic string, key, value []byte, headers map[string]string) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.ByteEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now(),
		Headers:   make([]sarama.RecordHeader, 0, len(headers)),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return msg
}

// consumerHeaders 将 sarama 消息头转换为 map.
func consumerHeaders(msg *sarama.ConsumerMessage) map[string]string {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}
	return headers
}
