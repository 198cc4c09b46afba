package broker

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

// mockLogger 用于测试的模拟日志器，记录各级别的消息.
type mockLogger struct {
	mu     sync.Mutex
	debugs []string
	infos  []string
	warns  []string
	errors []string
}

func (m *mockLogger) record(dst *[]string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*dst = append(*dst, fmt.Sprint(args...))
}

func (m *mockLogger) Debug(args ...any) { m.record(&m.debugs, args...) }
func (m *mockLogger) Debugf(format string, args ...any) {
	m.record(&m.debugs, fmt.Sprintf(format, args...))
}
func (m *mockLogger) Info(args ...any) { m.record(&m.infos, args...) }
func (m *mockLogger) Infof(format string, args ...any) {
	m.record(&m.infos, fmt.Sprintf(format, args...))
}
func (m *mockLogger) Warn(args ...any) { m.record(&m.warns, args...) }
func (m *mockLogger) Warnf(format string, args ...any) {
	m.record(&m.warns, fmt.Sprintf(format, args...))
}
func (m *mockLogger) Error(args ...any) { m.record(&m.errors, args...) }
func (m *mockLogger) Errorf(format string, args ...any) {
	m.record(&m.errors, fmt.Sprintf(format, args...))
}
func (m *mockLogger) With(fields ...logger.Field) logger.Logger     { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) Sync() error                                   { return nil }
func (m *mockLogger) Close() error                                  { return nil }

func (m *mockLogger) warnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warns)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

// testConfig 返回应用了默认值的测试配置.
func testConfig() *Config {
	return DefaultConfig()
}

// fakeDialer 按顺序返回预置的生产者与消费者组.
type fakeDialer struct {
	mu          sync.Mutex
	producers   []sarama.SyncProducer
	producerErr []error
	group       sarama.ConsumerGroup
	groupErr    error
	delay       time.Duration
	dialed      int
}

func (d *fakeDialer) DialProducer(_ []string, _ *sarama.Config) (sarama.SyncProducer, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dialed
	d.dialed++
	if i < len(d.producerErr) && d.producerErr[i] != nil {
		return nil, d.producerErr[i]
	}
	if i < len(d.producers) {
		return d.producers[i], nil
	}
	return nil, fmt.Errorf("no producer prepared for dial %d", i)
}

func (d *fakeDialer) DialConsumerGroup(_ []string, _ string, _ *sarama.Config) (sarama.ConsumerGroup, error) {
	if d.groupErr != nil {
		return nil, d.groupErr
	}
	return d.group, nil
}

// closeTrackingProducer 记录 Close 调用的生产者.
type closeTrackingProducer struct {
	*mocks.SyncProducer
	mu     sync.Mutex
	closed int
}

func (p *closeTrackingProducer) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return p.SyncProducer.Close()
}

func (p *closeTrackingProducer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func newMockProducer(t *testing.T, cfg *sarama.Config) *closeTrackingProducer {
	return &closeTrackingProducer{SyncProducer: mocks.NewSyncProducer(t, cfg)}
}

// fakeConsumerGroup 模拟消费者组，每次 Consume 记录主题并阻塞到会话结束.
type fakeConsumerGroup struct {
	mu       sync.Mutex
	calls    [][]string
	consumed chan []string
	errs     chan error
	closed   chan struct{}
	once     sync.Once
	closeErr error
}

func newFakeConsumerGroup() *fakeConsumerGroup {
	return &fakeConsumerGroup{
		consumed: make(chan []string, 16),
		errs:     make(chan error, 4),
		closed:   make(chan struct{}),
	}
}

func (g *fakeConsumerGroup) Consume(ctx context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	default:
	}

	g.mu.Lock()
	g.calls = append(g.calls, append([]string(nil), topics...))
	g.mu.Unlock()
	g.consumed <- topics

	select {
	case <-ctx.Done():
		return nil
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	}
}

func (g *fakeConsumerGroup) Errors() <-chan error { return g.errs }

func (g *fakeConsumerGroup) Close() error {
	g.once.Do(func() {
		close(g.closed)
		close(g.errs)
	})
	return g.closeErr
}

func (g *fakeConsumerGroup) Pause(map[string][]int32)  {}
func (g *fakeConsumerGroup) Resume(map[string][]int32) {}
func (g *fakeConsumerGroup) PauseAll()                 {}
func (g *fakeConsumerGroup) ResumeAll()                {}

func (g *fakeConsumerGroup) isClosed() bool {
	select {
	case <-g.closed:
		return true
	default:
		return false
	}
}

// fakeSession 模拟消费者组会话.
type fakeSession struct {
	ctx     context.Context
	mu      sync.Mutex
	marked  []*sarama.ConsumerMessage
	commits int
}

func newFakeSession(ctx context.Context) *fakeSession {
	return &fakeSession{ctx: ctx}
}

func (s *fakeSession) Claims() map[string][]int32               { return map[string][]int32{} }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg)
}

func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
}

func (s *fakeSession) markedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	offsets := make([]int64, 0, len(s.marked))
	for _, m := range s.marked {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

func (s *fakeSession) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// fakeClaim 模拟分区认领.
type fakeClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func newFakeClaim(topic string, partition int32, msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeClaim{topic: topic, partition: partition, messages: ch}
}

func (c *fakeClaim) Topic() string                            { return c.topic }
func (c *fakeClaim) Partition() int32                         { return c.partition }
func (c *fakeClaim) InitialOffset() int64                     { return sarama.OffsetNewest }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

// recordingPublisher 记录发布请求的 EventPublisher.
type recordingPublisher struct {
	mu        sync.Mutex
	published []TopicEvent
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, TopicEvent{Topic: topic, Event: event})
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, events []TopicEvent) error {
	for _, te := range events {
		if err := p.Publish(ctx, te.Topic, te.Event); err != nil {
			return err
		}
	}
	return nil
}

func (p *recordingPublisher) events() []TopicEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TopicEvent(nil), p.published...)
}

// noSleep 立即返回并记录等待时长.
type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.waits = append(n.waits, d)
	n.mu.Unlock()
	return ctx.Err()
}

func (n *noSleep) durations() []time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Duration(nil), n.waits...)
}

// consumerMessage 构建一条携带事件的消费消息.
func consumerMessage(t *testing.T, topic string, offset int64, event *Event) *sarama.ConsumerMessage {
	t.Helper()
	key, value, headers, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	msg := &sarama.ConsumerMessage{
		Topic:     topic,
		Partition: 0,
		Offset:    offset,
		Key:       key,
		Value:     value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, &sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return msg
}

// recordingCollector 记录计数与仪表盘取值的指标收集器.
type recordingCollector struct {
	mu       sync.Mutex
	counters map[string]int
	gauges   map[string]float64
}

var _ metrics.Collector = (*recordingCollector)(nil)

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters: make(map[string]int),
		gauges:   make(map[string]float64),
	}
}

// metricKey 形如 name{k1=v1,k2=v2}，标签按键排序.
func metricKey(name string, labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func (c *recordingCollector) RecordHTTPRequest(string, string, string, time.Duration, float64, float64) {
}
func (c *recordingCollector) RecordPanic(string, string)                   {}
func (c *recordingCollector) Histogram(string, float64, map[string]string) {}
func (c *recordingCollector) GetHandler() http.Handler                     { return http.NotFoundHandler() }
func (c *recordingCollector) GetPath() string                              { return "/metrics" }

func (c *recordingCollector) Counter(name string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metricKey(name, labels)]++
}

func (c *recordingCollector) Gauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[metricKey(name, labels)] = value
}

func (c *recordingCollector) count(name string, labels map[string]string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[metricKey(name, labels)]
}

func (c *recordingCollector) gauge(name string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gauges[metricKey(name, nil)]
}
