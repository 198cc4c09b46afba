package inventory

import (
	"context"
	"errors"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/logger"
)

// AdjustmentHandler 消费 inventory.adjust 事件并变更库存.
//
// 无法处理的事件（类型不符、数据无效、商品不存在、库存不足）记录日志后确认，
// 其余错误返回给消息代理重试，重试耗尽后进入死信主题.
// 事件ID随库存写入一起记录，数据库已提交而发布失败的事件重试时不会再次变更库存.
type AdjustmentHandler struct {
	service *Service
	logger  logger.Logger
}

var _ broker.MessageHandler = (*AdjustmentHandler)(nil)

// NewAdjustmentHandler 创建库存调整处理器.
func NewAdjustmentHandler(service *Service, log logger.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{service: service, logger: log}
}

// Handle 实现 broker.MessageHandler.
func (h *AdjustmentHandler) Handle(ctx context.Context, event *broker.Event) error {
	if event.Type != EventTypeAdjust {
		h.skip(ctx, event, "unexpected event type", nil)
		return nil
	}

	var data AdjustData
	if err := event.DecodeData(&data); err != nil {
		h.skip(ctx, event, "invalid payload", err)
		return nil
	}
	if err := data.Validate(); err != nil {
		h.skip(ctx, event, "invalid payload", err)
		return nil
	}

	_, err := h.service.UpdateStock(ctx, UpdateStockInput{
		ProductID:       data.ProductID,
		Quantity:        data.Quantity,
		TransactionType: data.TransactionType,
		EventID:         event.ID,
	})
	switch {
	case errors.Is(err, ErrStockNotFound) || errors.Is(err, ErrInsufficientStock):
		h.skip(ctx, event, "rejected", err)
		return nil
	case errors.Is(err, ErrAlreadyApplied):
		h.skip(ctx, event, "already applied", err)
		return nil
	}
	return err
}

func (h *AdjustmentHandler) skip(ctx context.Context, event *broker.Event, reason string, err error) {
	if h.logger == nil {
		return
	}
	fields := []logger.Field{
		logger.String("eventType", event.Type),
		logger.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	h.logger.WithContext(ctx).With(fields...).Warn("[Inventory] 库存调整事件已跳过")
}
