package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/suite"
)

type SubscriberTestSuite struct {
	suite.Suite
	cfg        *Config
	group      *fakeConsumerGroup
	conn       *Connection
	producer   *closeTrackingProducer
	dlq        *recordingPublisher
	sleeper    *noSleep
	collector  *recordingCollector
	log        *mockLogger
	subscriber *Subscriber
}

func (s *SubscriberTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.group = newFakeConsumerGroup()
	s.log = &mockLogger{}
	s.collector = newRecordingCollector()
	s.dlq = &recordingPublisher{}
	s.sleeper = &noSleep{}

	s.producer = newMockProducer(s.T(), s.cfg.ProducerSaramaConfig())
	dialer := &fakeDialer{
		producers: []sarama.SyncProducer{
			s.producer,
			newMockProducer(s.T(), s.cfg.TransactionalSaramaConfig()),
		},
		group: s.group,
	}
	s.conn = NewConnection(s.cfg, dialer, s.log)

	bm := newBrokerMetrics(s.collector, s.cfg.Consumer.GroupID)
	executor := NewRetryExecutor(s.cfg.Consumer.Retry, s.log)
	executor.sleep = s.sleeper.sleep
	executor.metrics = bm
	router := NewDeadLetterRouter(s.dlq, s.cfg.ClientID, s.log)
	router.metrics = bm

	s.subscriber = NewSubscriber(s.conn, s.cfg.Consumer, executor, router, s.log)
	s.subscriber.metrics = bm
}

func (s *SubscriberTestSuite) TearDownTest() {
	s.subscriber.Stop()
	s.NoError(s.conn.Disconnect(context.Background()))
}

func (s *SubscriberTestSuite) register(topic string, handler MessageHandler) {
	s.subscriber.handlersMu.Lock()
	s.subscriber.handlers[topic] = handler
	s.subscriber.handlersMu.Unlock()
}

func (s *SubscriberTestSuite) awaitConsume() []string {
	select {
	case topics := <-s.group.consumed:
		return topics
	case <-time.After(time.Second):
		s.FailNow("consumer group session was not started")
		return nil
	}
}

func (s *SubscriberTestSuite) TestProcessMessage_Success() {
	var got *Event
	s.register("inventory.adjust", HandlerFunc(func(_ context.Context, e *Event) error {
		got = e
		return nil
	}))
	event := NewEvent("inventory.adjust", "admin", "1.0", map[string]int{"delta": -2})
	session := newFakeSession(context.Background())

	s.subscriber.processMessage(session, consumerMessage(s.T(), "inventory.adjust", 5, event))

	s.Require().NotNil(got)
	s.Equal(event.ID, got.ID)
	s.Equal([]int64{5}, session.markedOffsets())
	s.Equal(1, s.collector.count("broker_messages_consumed_total", map[string]string{
		"topic": "inventory.adjust", "group": s.cfg.Consumer.GroupID,
	}))
	s.Empty(s.dlq.events())
}

func (s *SubscriberTestSuite) TestProcessMessage_DecodeFailureIsDropped() {
	called := false
	s.register("inventory.adjust", HandlerFunc(func(context.Context, *Event) error {
		called = true
		return nil
	}))
	session := newFakeSession(context.Background())
	msg := &sarama.ConsumerMessage{Topic: "inventory.adjust", Offset: 3, Value: []byte("not-json")}

	s.subscriber.processMessage(session, msg)

	s.False(called)
	s.Equal([]int64{3}, session.markedOffsets())
	s.Empty(s.dlq.events())
	s.Equal(1, s.collector.count("broker_messages_dropped_total", map[string]string{
		"topic": "inventory.adjust", "reason": "decode",
	}))
}

func (s *SubscriberTestSuite) TestProcessMessage_EmptyBodyIsDropped() {
	session := newFakeSession(context.Background())
	s.subscriber.processMessage(session, &sarama.ConsumerMessage{Topic: "inventory.adjust", Offset: 8})

	s.Equal([]int64{8}, session.markedOffsets())
	s.Equal(1, s.collector.count("broker_messages_dropped_total", map[string]string{
		"topic": "inventory.adjust", "reason": "decode",
	}))
}

func (s *SubscriberTestSuite) TestProcessMessage_NoHandler() {
	session := newFakeSession(context.Background())
	event := NewEvent("x", "s", "1", nil)

	s.subscriber.processMessage(session, consumerMessage(s.T(), "unknown.topic", 1, event))

	s.Equal([]int64{1}, session.markedOffsets())
	s.Equal(1, s.collector.count("broker_messages_dropped_total", map[string]string{
		"topic": "unknown.topic", "reason": "no_handler",
	}))
}

func (s *SubscriberTestSuite) TestProcessMessage_ExhaustedGoesToDeadLetter() {
	attempts := 0
	s.register("inventory.adjust", HandlerFunc(func(context.Context, *Event) error {
		attempts++
		return errors.New("database unavailable")
	}))
	event := NewEvent("inventory.adjust", "admin", "1.0", nil)
	msg := consumerMessage(s.T(), "inventory.adjust", 12, event)
	session := newFakeSession(context.Background())

	s.subscriber.processMessage(session, msg)

	s.Equal(3, attempts)
	s.Equal([]time.Duration{2 * time.Second, 4 * time.Second}, s.sleeper.durations())
	s.Equal([]int64{12}, session.markedOffsets())

	published := s.dlq.events()
	s.Require().Len(published, 1)
	s.Equal("inventory.adjust.dlq", published[0].Topic)
	dlqEvent := published[0].Event
	s.Equal(event.ID, dlqEvent.ID)
	s.Equal(DeadLetterEventType, dlqEvent.Type)
	s.Equal(s.cfg.ClientID, dlqEvent.Source)
	s.Equal(DeadLetterData{
		OriginalTopic:   "inventory.adjust",
		Partition:       0,
		Offset:          12,
		Error:           "database unavailable",
		OriginalMessage: string(msg.Value),
	}, dlqEvent.Data)

	s.Equal(1, s.collector.count("broker_consume_errors_total", map[string]string{
		"topic": "inventory.adjust", "group": s.cfg.Consumer.GroupID,
	}))
	s.Equal(2, s.collector.count("broker_handler_retries_total", map[string]string{"topic": "inventory.adjust"}))
}

func (s *SubscriberTestSuite) TestProcessMessage_DeadLetterFailureStillCommits() {
	s.dlq.err = errors.New("dlq topic unavailable")
	s.register("inventory.adjust", HandlerFunc(func(context.Context, *Event) error {
		return errors.New("fail")
	}))
	session := newFakeSession(context.Background())

	s.subscriber.processMessage(session, consumerMessage(s.T(), "inventory.adjust", 4, NewEvent("t", "s", "1", nil)))

	s.Equal([]int64{4}, session.markedOffsets())
	s.Equal(1, s.collector.count("broker_dlq_publish_errors_total", map[string]string{"topic": "inventory.adjust"}))
}

func (s *SubscriberTestSuite) TestProcessMessage_AbortedRetryIsNotMarked() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.register("inventory.adjust", HandlerFunc(func(context.Context, *Event) error {
		cancel()
		return errors.New("fail")
	}))
	session := newFakeSession(ctx)

	s.subscriber.processMessage(session, consumerMessage(s.T(), "inventory.adjust", 6, NewEvent("t", "s", "1", nil)))

	s.Empty(session.markedOffsets())
	s.Empty(s.dlq.events())
}

func (s *SubscriberTestSuite) TestProcessMessage_SessionEndsDuringLastAttempt() {
	s.Require().NoError(s.conn.Connect(context.Background()))
	publisher := NewPublisher(s.conn, s.cfg.SendTimeout, s.log)
	router := NewDeadLetterRouter(publisher, s.cfg.ClientID, s.log)
	router.metrics = newBrokerMetrics(s.collector, s.cfg.Consumer.GroupID)
	s.subscriber.router = router

	var dlqTopic string
	s.producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		dlqTopic = msg.Topic
		if msg.Topic != "orders.dlq" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		return nil
	})

	// 重平衡或新增订阅在最后一次尝试期间结束会话
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attempts := 0
	s.register("orders", HandlerFunc(func(context.Context, *Event) error {
		attempts++
		if attempts == s.cfg.Consumer.Retry.MaxAttempts {
			cancel()
		}
		return errors.New("database unavailable")
	}))
	session := newFakeSession(ctx)

	s.subscriber.processMessage(session, consumerMessage(s.T(), "orders", 7, NewEvent("order.placed", "checkout", "1.0", nil)))

	s.Equal(3, attempts)
	s.Equal("orders.dlq", dlqTopic)
	s.Equal([]int64{7}, session.markedOffsets())
	s.Equal(1, s.collector.count("broker_dlq_total", map[string]string{"topic": "orders"}))
	s.Zero(s.collector.count("broker_dlq_publish_errors_total", map[string]string{"topic": "orders"}))
}

func (s *SubscriberTestSuite) TestConsumeClaim_BoundsConcurrentPartitions() {
	const partitions = 5
	limit := s.cfg.Consumer.PartitionsConsumedConcurrently
	s.Require().Equal(3, limit)

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		seen     = make(map[int32][]string)
	)
	release := make(chan struct{})
	owner := make(map[string]int32)

	s.register("inventory.adjust", HandlerFunc(func(_ context.Context, e *Event) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		p := owner[e.ID]
		seen[p] = append(seen[p], e.ID)
		mu.Unlock()
		return nil
	}))

	claims := make([]*fakeClaim, 0, partitions)
	want := make(map[int32][]string)
	for p := int32(0); p < partitions; p++ {
		var msgs []*sarama.ConsumerMessage
		for offset := int64(0); offset < 3; offset++ {
			event := NewEvent("inventory.adjust", "admin", "1.0", nil)
			owner[event.ID] = p
			want[p] = append(want[p], event.ID)
			msg := consumerMessage(s.T(), "inventory.adjust", offset, event)
			msg.Partition = p
			msgs = append(msgs, msg)
		}
		claims = append(claims, newFakeClaim("inventory.adjust", p, msgs...))
	}

	session := newFakeSession(context.Background())
	var wg sync.WaitGroup
	for _, claim := range claims {
		wg.Add(1)
		go func(claim *fakeClaim) {
			defer wg.Done()
			s.NoError(s.subscriber.ConsumeClaim(session, claim))
		}(claim)
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight == limit
	}, time.Second, 5*time.Millisecond)
	s.Never(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight > limit
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	wg.Wait()

	s.Equal(limit, peak)
	s.Equal(want, seen)
	s.Len(session.markedOffsets(), partitions*3)
}

func (s *SubscriberTestSuite) TestConsumeClaim_PreservesPartitionOrder() {
	var (
		mu   sync.Mutex
		seen []string
	)
	s.register("inventory.adjust", HandlerFunc(func(_ context.Context, e *Event) error {
		mu.Lock()
		seen = append(seen, e.ID)
		mu.Unlock()
		return nil
	}))

	events := []*Event{
		NewEvent("t", "s", "1", nil),
		NewEvent("t", "s", "1", nil),
		NewEvent("t", "s", "1", nil),
	}
	msgs := make([]*sarama.ConsumerMessage, 0, len(events))
	for i, e := range events {
		msgs = append(msgs, consumerMessage(s.T(), "inventory.adjust", int64(i), e))
	}
	session := newFakeSession(context.Background())

	s.Require().NoError(s.subscriber.ConsumeClaim(session, newFakeClaim("inventory.adjust", 0, msgs...)))

	s.Equal([]string{events[0].ID, events[1].ID, events[2].ID}, seen)
	s.Equal([]int64{0, 1, 2}, session.markedOffsets())
}

func (s *SubscriberTestSuite) TestConsumeClaim_CommitsEveryThreshold() {
	s.subscriber.cfg.AutoCommitThreshold = 2
	s.register("inventory.adjust", HandlerFunc(func(context.Context, *Event) error { return nil }))

	var msgs []*sarama.ConsumerMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, consumerMessage(s.T(), "inventory.adjust", int64(i), NewEvent("t", "s", "1", nil)))
	}
	session := newFakeSession(context.Background())

	s.Require().NoError(s.subscriber.ConsumeClaim(session, newFakeClaim("inventory.adjust", 0, msgs...)))
	s.Equal(2, session.commitCount())

	s.Require().NoError(s.subscriber.Cleanup(session))
	s.Equal(3, session.commitCount())
}

func (s *SubscriberTestSuite) TestConsumeClaim_StopsWhenSessionEnds() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	claim := &fakeClaim{topic: "a", messages: make(chan *sarama.ConsumerMessage)}

	s.NoError(s.subscriber.ConsumeClaim(newFakeSession(ctx), claim))
}

func (s *SubscriberTestSuite) TestSubscribe_Validation() {
	noop := HandlerFunc(func(context.Context, *Event) error { return nil })
	s.ErrorIs(s.subscriber.Subscribe(context.Background(), "", noop), ErrEmptyTopic)
	s.ErrorIs(s.subscriber.Subscribe(context.Background(), "a", nil), ErrNilHandler)
	s.Empty(s.subscriber.Topics())
}

func (s *SubscriberTestSuite) TestSubscribe_ConnectsAndStartsSession() {
	noop := HandlerFunc(func(context.Context, *Event) error { return nil })

	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", noop))

	s.True(s.conn.IsHealthy())
	s.Equal([]string{"inventory.adjust"}, s.awaitConsume())
}

func (s *SubscriberTestSuite) TestSubscribe_NewTopicRestartsSession() {
	noop := HandlerFunc(func(context.Context, *Event) error { return nil })

	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", noop))
	s.Equal([]string{"inventory.adjust"}, s.awaitConsume())

	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "catalog.changed", noop))
	s.Equal([]string{"catalog.changed", "inventory.adjust"}, s.awaitConsume())
	s.Equal([]string{"catalog.changed", "inventory.adjust"}, s.subscriber.Topics())
}

func (s *SubscriberTestSuite) TestSubscribe_ReplaceHandlerKeepsSession() {
	first := HandlerFunc(func(context.Context, *Event) error { return errors.New("first") })
	second := HandlerFunc(func(context.Context, *Event) error { return nil })

	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", first))
	s.awaitConsume()
	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", second))

	s.Equal(1, s.log.warnCount())
	select {
	case topics := <-s.group.consumed:
		s.Failf("unexpected session restart", "topics: %v", topics)
	case <-time.After(50 * time.Millisecond):
	}

	session := newFakeSession(context.Background())
	s.subscriber.processMessage(session, consumerMessage(s.T(), "inventory.adjust", 0, NewEvent("t", "s", "1", nil)))
	s.Empty(s.dlq.events())
}

func (s *SubscriberTestSuite) TestStop_EndsLoop() {
	noop := HandlerFunc(func(context.Context, *Event) error { return nil })
	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", noop))
	s.awaitConsume()

	s.subscriber.Stop()

	s.subscriber.mu.Lock()
	running := s.subscriber.running
	s.subscriber.mu.Unlock()
	s.False(running)

	// 停止后恢复会重新加入
	s.Require().NoError(s.subscriber.Resume(context.Background()))
	s.Equal([]string{"inventory.adjust"}, s.awaitConsume())
}

func (s *SubscriberTestSuite) TestResume_WithoutTopicsIsNoop() {
	s.NoError(s.subscriber.Resume(context.Background()))
	s.subscriber.mu.Lock()
	defer s.subscriber.mu.Unlock()
	s.False(s.subscriber.running)
}

func (s *SubscriberTestSuite) TestDrainErrors_LogsGroupErrors() {
	noop := HandlerFunc(func(context.Context, *Event) error { return nil })
	s.Require().NoError(s.subscriber.Subscribe(context.Background(), "inventory.adjust", noop))
	s.awaitConsume()

	s.group.errs <- errors.New("rebalance in progress")

	s.Eventually(func() bool { return s.log.warnCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscriberSuite(t *testing.T) {
	suite.Run(t, new(SubscriberTestSuite))
}
