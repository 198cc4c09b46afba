// Package inventory 实现库存扣减与库存变更事件.
//
// 扣减在数据库事务中加锁读取、校验并写回库存，数据库事务嵌套在 Kafka 事务内，
// inventory.updated 事件只在库存写入成功后随 Kafka 事务一起提交.
package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Tsukikage7/inventory-service/database"
)

// 预定义错误.
var (
	// ErrStockNotFound 商品没有库存记录.
	ErrStockNotFound = errors.New("inventory: stock not found")
	// ErrStockExists 商品已有库存记录.
	ErrStockExists = errors.New("inventory: stock already exists")
	// ErrInsufficientStock 扣减数量超过库存.
	ErrInsufficientStock = errors.New("inventory: quantity exceeds the stock")
	// ErrInvalidAmount 变更数量必须为正整数.
	ErrInvalidAmount = errors.New("inventory: amount must be a positive integer")
	// ErrEmptyProductID 商品ID为空.
	ErrEmptyProductID = errors.New("inventory: product id is required")
	// ErrAlreadyApplied 触发变更的事件已在之前的事务中应用.
	ErrAlreadyApplied = errors.New("inventory: event already applied")
)

// TransactionType 库存变更类型.
type TransactionType string

const (
	TransactionDecrement TransactionType = "DECREMENT"
	TransactionIncrement TransactionType = "INCREMENT"
)

// Valid 是否为已知的变更类型.
func (t TransactionType) Valid() bool {
	return t == TransactionDecrement || t == TransactionIncrement
}

// Stock 商品在仓库中的库存.
type Stock struct {
	database.BaseModel[string]
	WarehouseID string `gorm:"column:warehouse_id;size:64;not null" json:"warehouseId"`
	ProductID   string `gorm:"column:product_id;size:64;not null;uniqueIndex" json:"productId"`
	Quantity    int    `gorm:"column:quantity;not null;default:0" json:"quantity"`
}

// TableName 表名.
func (Stock) TableName() string {
	return "inventory"
}

// ProcessedEvent 已应用的上游事件，与库存写入在同一数据库事务中记录.
type ProcessedEvent struct {
	EventID   string    `gorm:"column:event_id;primaryKey;size:64" json:"eventId"`
	ProductID string    `gorm:"column:product_id;size:64;not null" json:"productId"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// TableName 表名.
func (ProcessedEvent) TableName() string {
	return "inventory_processed_events"
}

// BeforeCreate 未指定 ID 时生成 UUIDv7.
func (s *Stock) BeforeCreate(_ *gorm.DB) error {
	if s.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	s.ID = id.String()
	return nil
}

// Decrement 扣减库存，数量超过现有库存时返回 ErrInsufficientStock 且不修改库存.
func (s *Stock) Decrement(amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > s.Quantity {
		return ErrInsufficientStock
	}
	s.Quantity -= amount
	return nil
}

// Increment 增加库存.
func (s *Stock) Increment(amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.Quantity += amount
	return nil
}

// Apply 按变更类型修改库存.
func (s *Stock) Apply(t TransactionType, amount int) error {
	switch t {
	case TransactionDecrement:
		return s.Decrement(amount)
	case TransactionIncrement:
		return s.Increment(amount)
	default:
		return ErrInvalidTransactionType
	}
}
