package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

// Transactioner 数据库事务边界，*database.DB 满足该接口.
type Transactioner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// UpdateStockInput 库存变更请求.
type UpdateStockInput struct {
	ProductID       string
	Quantity        int
	TransactionType TransactionType
	// EventID 触发变更的上游事件ID，非空时与库存写入在同一事务中记录，
	// 同一事件再次应用返回 ErrAlreadyApplied.
	EventID string
}

// Validate 校验请求，productId 必填，quantity 为不小于 1 的整数.
func (in UpdateStockInput) Validate() error {
	var errs []error
	if in.ProductID == "" {
		errs = append(errs, ErrEmptyProductID)
	}
	if in.Quantity < 1 {
		errs = append(errs, ErrInvalidAmount)
	}
	if in.TransactionType != "" && !in.TransactionType.Valid() {
		errs = append(errs, ErrInvalidTransactionType)
	}
	return errors.Join(errs...)
}

// ServiceOption 服务配置选项.
type ServiceOption func(*Service)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = log
	}
}

// WithMetrics 启用库存指标.
func WithMetrics(collector metrics.Collector) ServiceOption {
	return func(s *Service) {
		s.collector = collector
	}
}

// WithSource 设置事件来源，默认 inventory-service.
func WithSource(source string) ServiceOption {
	return func(s *Service) {
		if source != "" {
			s.source = source
		}
	}
}

// Service 库存用例.
type Service struct {
	repo      Repository
	tx        Transactioner
	publisher broker.Transactor
	topic     string
	source    string
	logger    logger.Logger
	collector metrics.Collector
}

// NewService 创建库存用例，topic 为 inventory.updated 事件的发布主题.
func NewService(repo Repository, tx Transactioner, publisher broker.Transactor, topic string, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		topic:     topic,
		source:    "inventory-service",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStock 查询库存.
func (s *Service) GetStock(ctx context.Context, productID string) (*Stock, error) {
	if productID == "" {
		return nil, ErrEmptyProductID
	}
	return s.repo.GetItem(ctx, productID)
}

// UpdateStock 变更库存并发布 inventory.updated 事件，默认为扣减.
//
// 数据库事务在 Kafka 事务内执行：库存写入失败时 Kafka 事务中止，事件不可见.
// 数据库提交后 Kafka 发送或提交失败时，库存写入保留且不会产生事件，调用方收到发布错误.
// 携带 EventID 的重试因此返回 ErrAlreadyApplied，不会重复变更库存.
func (s *Service) UpdateStock(ctx context.Context, in UpdateStockInput) (*Stock, error) {
	if in.TransactionType == "" {
		in.TransactionType = TransactionDecrement
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	data := &UpdatedData{
		ProductID:       in.ProductID,
		Quantity:        in.Quantity,
		TransactionType: in.TransactionType,
	}
	event := NewUpdatedEvent(s.source, data)

	stock, err := broker.PublishWithTransaction(ctx, s.publisher, s.topic, event, func(ctx context.Context) (*Stock, error) {
		var updated *Stock
		err := s.tx.Transaction(ctx, func(ctx context.Context) error {
			if in.EventID != "" {
				if err := s.repo.MarkProcessed(ctx, in.EventID, in.ProductID); err != nil {
					return err
				}
			}
			item, err := s.repo.GetItemForUpdate(ctx, in.ProductID)
			if err != nil {
				return err
			}
			if err := item.Apply(in.TransactionType, in.Quantity); err != nil {
				return err
			}
			updated, err = s.repo.UpdateStock(ctx, in.ProductID, item.Quantity)
			return err
		})
		if err != nil {
			return nil, err
		}
		data.WarehouseID = updated.WarehouseID
		data.Remaining = updated.Quantity
		return updated, nil
	})

	s.record(in.TransactionType, err, time.Since(startTime))
	if err != nil {
		s.logFailure(ctx, in, event.ID, err)
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithContext(ctx).With(
			logger.String("productId", in.ProductID),
			logger.String("transactionType", string(in.TransactionType)),
			logger.Int("quantity", in.Quantity),
			logger.Int("remaining", stock.Quantity),
			logger.String("updatedEventId", event.ID),
		).Info("[Inventory] 库存已更新")
	}
	return stock, nil
}

func (s *Service) record(t TransactionType, err error, d time.Duration) {
	if s.collector == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientStock):
		result = "insufficient"
	case errors.Is(err, ErrStockNotFound):
		result = "not_found"
	case errors.Is(err, ErrAlreadyApplied):
		result = "duplicate"
	default:
		result = "error"
	}
	labels := map[string]string{"type": string(t), "result": result}
	s.collector.Counter("inventory_stock_updates_total", labels)
	s.collector.Histogram("inventory_stock_update_duration_seconds", d.Seconds(), map[string]string{"type": string(t)})
}

func (s *Service) logFailure(ctx context.Context, in UpdateStockInput, eventID string, err error) {
	if s.logger == nil {
		return
	}
	log := s.logger.WithContext(ctx).With(
		logger.String("productId", in.ProductID),
		logger.String("transactionType", string(in.TransactionType)),
		logger.Int("quantity", in.Quantity),
		logger.String("updatedEventId", eventID),
		logger.Err(err),
	)
	if errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrStockNotFound) || errors.Is(err, ErrAlreadyApplied) {
		log.Warn("[Inventory] 库存变更被拒绝")
		return
	}
	log.Error("[Inventory] 库存变更失败")
}

// AddStock 新增商品库存记录，不发布事件.
func (s *Service) AddStock(ctx context.Context, stock *Stock) error {
	if err := s.repo.AddStock(ctx, stock); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithContext(ctx).With(
			logger.String("productId", stock.ProductID),
			logger.String("warehouseId", stock.WarehouseID),
			logger.Int("quantity", stock.Quantity),
		).Info("[Inventory] 库存记录已创建")
	}
	return nil
}
