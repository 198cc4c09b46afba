package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/cache"
	"github.com/Tsukikage7/inventory-service/idempotency"
)

// AdjustmentHandlerTestSuite 库存调整消费测试套件.
type AdjustmentHandlerTestSuite struct {
	suite.Suite
	f       *fixture
	handler broker.MessageHandler
}

func TestAdjustmentHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdjustmentHandlerTestSuite))
}

func (s *AdjustmentHandlerTestSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.f.seed(s.T(), "p-1", 10)

	c, err := cache.NewCache(cache.NewMemoryConfig(), s.f.log)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })

	s.handler = idempotency.Middleware(idempotency.NewStore(c),
		idempotency.WithLogger(s.f.log),
	)(NewAdjustmentHandler(s.f.service, s.f.log))
}

func adjustEvent(data any) *broker.Event {
	return broker.NewEvent(EventTypeAdjust, "order-service", EventVersion, data)
}

func (s *AdjustmentHandlerTestSuite) TestAppliesAdjustment() {
	err := s.handler.Handle(context.Background(), adjustEvent(AdjustData{
		ProductID:       "p-1",
		Quantity:        4,
		TransactionType: TransactionIncrement,
	}))

	s.NoError(err)
	s.Equal(14, s.f.quantity(s.T(), "p-1"))
	s.Len(s.f.tx.events(), 1)
}

func (s *AdjustmentHandlerTestSuite) TestGenericPayload() {
	// 消费端的 Data 为通用 JSON 值
	event := adjustEvent(map[string]any{
		"productId":       "p-1",
		"quantity":        float64(2),
		"transactionType": "DECREMENT",
	})

	s.NoError(s.handler.Handle(context.Background(), event))
	s.Equal(8, s.f.quantity(s.T(), "p-1"))
}

func (s *AdjustmentHandlerTestSuite) TestDuplicateDeliverySkipped() {
	event := adjustEvent(AdjustData{ProductID: "p-1", Quantity: 3, TransactionType: TransactionDecrement})

	s.NoError(s.handler.Handle(context.Background(), event))
	s.NoError(s.handler.Handle(context.Background(), event))

	s.Equal(7, s.f.quantity(s.T(), "p-1"))
	s.Len(s.f.tx.events(), 1)
}

func (s *AdjustmentHandlerTestSuite) TestRejectedAdjustmentAcknowledged() {
	cases := map[string]*broker.Event{
		"insufficient": adjustEvent(AdjustData{ProductID: "p-1", Quantity: 50, TransactionType: TransactionDecrement}),
		"unknown":      adjustEvent(AdjustData{ProductID: "nope", Quantity: 1, TransactionType: TransactionDecrement}),
		"invalid":      adjustEvent(AdjustData{ProductID: "p-1", Quantity: 0, TransactionType: TransactionDecrement}),
		"wrong type":   broker.NewEvent(EventTypeUpdated, "x", EventVersion, AdjustData{ProductID: "p-1", Quantity: 1}),
		"bad payload":  adjustEvent("not an object"),
	}
	for name, event := range cases {
		s.Run(name, func() {
			s.NoError(s.handler.Handle(context.Background(), event))
		})
	}
	s.Equal(10, s.f.quantity(s.T(), "p-1"))
	s.Empty(s.f.tx.events())
}

func (s *AdjustmentHandlerTestSuite) TestBrokerFailureRetried() {
	s.f.tx.sendErr = errors.New("broker down")
	event := adjustEvent(AdjustData{ProductID: "p-1", Quantity: 1, TransactionType: TransactionDecrement})

	err := s.handler.Handle(context.Background(), event)
	s.ErrorIs(err, broker.ErrPublish)

	s.Equal(9, s.f.quantity(s.T(), "p-1"))

	// 幂等锁已释放，重新投递时数据库中的事件记录阻止再次扣减
	s.f.tx.sendErr = nil
	s.NoError(s.handler.Handle(context.Background(), event))
	s.Equal(9, s.f.quantity(s.T(), "p-1"))
	s.Empty(s.f.tx.events())
}

func (s *AdjustmentHandlerTestSuite) TestRejectedAdjustmentDoesNotRecordEvent() {
	event := adjustEvent(AdjustData{ProductID: "p-1", Quantity: 50, TransactionType: TransactionDecrement})
	s.NoError(s.handler.Handle(context.Background(), event))

	var count int64
	s.Require().NoError(s.f.db.Conn(context.Background()).Model(&ProcessedEvent{}).Count(&count).Error)
	s.Zero(count)
}
