package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tsukikage7/inventory-service/database"
)

// Repository 库存仓储.
//
// 所有方法通过 ctx 参与调用方开启的数据库事务.
type Repository interface {
	GetItem(ctx context.Context, productID string) (*Stock, error)
	GetItemForUpdate(ctx context.Context, productID string) (*Stock, error)
	AddStock(ctx context.Context, stock *Stock) error
	UpdateStock(ctx context.Context, productID string, quantity int) (*Stock, error)
	MarkProcessed(ctx context.Context, eventID, productID string) error
}

// GormRepository 基于 GORM 的库存仓储.
type GormRepository struct {
	db *database.DB
}

var _ Repository = (*GormRepository)(nil)

// NewRepository 创建库存仓储.
func NewRepository(db *database.DB) *GormRepository {
	return &GormRepository{db: db}
}

// GetItem 按商品ID查询库存.
func (r *GormRepository) GetItem(ctx context.Context, productID string) (*Stock, error) {
	return r.find(r.db.Conn(ctx), productID)
}

// GetItemForUpdate 按商品ID查询并锁定库存行，需在事务中调用.
//
// SQLite 不支持 FOR UPDATE，依赖其数据库级写锁.
func (r *GormRepository) GetItemForUpdate(ctx context.Context, productID string) (*Stock, error) {
	conn := r.db.Conn(ctx)
	switch r.db.Driver() {
	case database.DriverSQLite, database.DriverSQLite3:
	default:
		conn = conn.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return r.find(conn, productID)
}

func (r *GormRepository) find(conn *gorm.DB, productID string) (*Stock, error) {
	var stock Stock
	err := conn.Where("product_id = ?", productID).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStockNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// AddStock 新增库存记录.
func (r *GormRepository) AddStock(ctx context.Context, stock *Stock) error {
	if stock.ProductID == "" {
		return ErrEmptyProductID
	}
	if stock.Quantity < 0 {
		return ErrInvalidAmount
	}
	err := r.db.Conn(ctx).Create(stock).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrStockExists
	}
	return err
}

// UpdateStock 写回库存数量并返回最新记录.
func (r *GormRepository) UpdateStock(ctx context.Context, productID string, quantity int) (*Stock, error) {
	if quantity < 0 {
		return nil, ErrInvalidAmount
	}
	conn := r.db.Conn(ctx)
	result := conn.Model(&Stock{}).Where("product_id = ?", productID).Update("quantity", quantity)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrStockNotFound
	}
	return r.find(conn, productID)
}

// MarkProcessed 记录已应用的事件，重复记录返回 ErrAlreadyApplied.
func (r *GormRepository) MarkProcessed(ctx context.Context, eventID, productID string) error {
	err := r.db.Conn(ctx).Create(&ProcessedEvent{EventID: eventID, ProductID: productID}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyApplied
	}
	return err
}
