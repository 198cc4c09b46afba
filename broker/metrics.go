package broker

import (
	"time"

	"github.com/Tsukikage7/inventory-service/metrics"
)

// brokerMetrics 消息代理指标记录器.
type brokerMetrics struct {
	collector metrics.Collector
	groupID   string
}

func newBrokerMetrics(collector metrics.Collector, groupID string) *brokerMetrics {
	return &brokerMetrics{collector: collector, groupID: groupID}
}

// RecordPublish 记录发布成功.
func (m *brokerMetrics) RecordPublish(topic string, latency time.Duration) {
	labels := map[string]string{"topic": topic}
	m.collector.Counter("broker_messages_published_total", labels)
	m.collector.Histogram("broker_publish_duration_seconds", latency.Seconds(), labels)
}

// RecordPublishError 记录发布失败.
func (m *brokerMetrics) RecordPublishError(topic, mode string) {
	m.collector.Counter("broker_publish_errors_total", map[string]string{"topic": topic, "mode": mode})
}

// RecordConsume 记录处理成功.
func (m *brokerMetrics) RecordConsume(topic string, latency time.Duration) {
	labels := map[string]string{"topic": topic, "group": m.groupID}
	m.collector.Counter("broker_messages_consumed_total", labels)
	m.collector.Histogram("broker_consume_duration_seconds", latency.Seconds(), labels)
}

// RecordConsumeError 记录重试耗尽.
func (m *brokerMetrics) RecordConsumeError(topic string) {
	m.collector.Counter("broker_consume_errors_total", map[string]string{"topic": topic, "group": m.groupID})
}

// RecordRetry 记录一次重试.
func (m *brokerMetrics) RecordRetry(topic string) {
	m.collector.Counter("broker_handler_retries_total", map[string]string{"topic": topic})
}

// RecordDrop 记录被丢弃的消息，reason 为 decode 或 no_handler.
func (m *brokerMetrics) RecordDrop(topic, reason string) {
	m.collector.Counter("broker_messages_dropped_total", map[string]string{"topic": topic, "reason": reason})
}

// RecordDLQ 记录死信投递成功.
func (m *brokerMetrics) RecordDLQ(topic string) {
	m.collector.Counter("broker_dlq_total", map[string]string{"topic": topic})
}

// RecordDLQError 记录死信投递失败.
func (m *brokerMetrics) RecordDLQError(topic string) {
	m.collector.Counter("broker_dlq_publish_errors_total", map[string]string{"topic": topic})
}

// RecordConnected 记录连接状态.
func (m *brokerMetrics) RecordConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.collector.Gauge("broker_connected", v, nil)
}
