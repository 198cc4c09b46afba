package inventory

import (
	"errors"

	"github.com/Tsukikage7/inventory-service/broker"
)

// 事件常量.
const (
	EventTypeUpdated = "inventory.updated"
	EventTypeAdjust  = "inventory.adjust"
	EventVersion     = "1.0"
)

// ErrInvalidTransactionType 未知的库存变更类型.
var ErrInvalidTransactionType = errors.New("inventory: invalid transaction type")

// UpdatedData inventory.updated 事件数据.
//
// Quantity 为本次变更的数量，Remaining 为变更后的库存.
type UpdatedData struct {
	ProductID       string          `json:"productId"`
	WarehouseID     string          `json:"warehouseId,omitempty"`
	Quantity        int             `json:"quantity"`
	Remaining       int             `json:"remaining"`
	TransactionType TransactionType `json:"transactionType"`
}

// NewUpdatedEvent 创建库存变更事件.
//
// data 以指针形式放入事件，事务内的 work 可以在编码前补全字段.
func NewUpdatedEvent(source string, data *UpdatedData) *broker.Event {
	return broker.NewEvent(EventTypeUpdated, source, EventVersion, data)
}

// AdjustData inventory.adjust 事件数据，由上游服务发起的库存调整.
type AdjustData struct {
	ProductID       string          `json:"productId"`
	Quantity        int             `json:"quantity"`
	TransactionType TransactionType `json:"transactionType"`
}

// Validate 校验调整请求.
func (d *AdjustData) Validate() error {
	if d.ProductID == "" {
		return ErrEmptyProductID
	}
	if d.Quantity < 1 {
		return ErrInvalidAmount
	}
	if !d.TransactionType.Valid() {
		return ErrInvalidTransactionType
	}
	return nil
}
