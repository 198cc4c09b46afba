package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/Tsukikage7/inventory-service/logger"
)

// BaseModel GORM 基础模型，带软删除.
type BaseModel[T any] struct {
	ID          T              `gorm:"primaryKey" json:"id"`
	CreatedTime time.Time      `gorm:"column:created_time;autoCreateTime" json:"createdAt"`
	UpdatedTime time.Time      `gorm:"column:updated_time;autoUpdateTime" json:"updatedAt"`
	DeletedTime gorm.DeletedAt `gorm:"column:deleted_time;index" json:"-"`
}

// txKey 上下文中的事务.
type txKey struct{}

// DB 数据库连接.
//
// Transaction 会把事务放入 ctx，之后经由 Conn(ctx) 取得的连接都在同一事务中执行.
type DB struct {
	db     *gorm.DB
	config *Config
	logger logger.Logger
}

// openGORM 创建 GORM 数据库连接.
func openGORM(config *Config, log logger.Logger) (*DB, error) {
	dialector, err := getDialector(config.Driver, config.ConnectionString())
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGORMLoggerAdapter(log, config.SlowThreshold, config.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if config.EnableTracing {
		if err = db.Use(tracing.NewPlugin()); err != nil {
			return nil, errors.Join(ErrRegisterTracingPlugin, err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(config.Pool.MaxOpen)
	sqlDB.SetMaxIdleConns(config.Pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(config.Pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.Pool.MaxIdleTime)

	log.With(logger.String("driver", config.Driver)).Info("[Database] 连接已建立")

	return &DB{
		db:     db,
		config: config,
		logger: log,
	}, nil
}

// getDialector 根据驱动类型返回对应的 Dialector.
func getDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres, DriverPostgreSQL:
		return postgres.Open(dsn), nil
	case DriverSQLite, DriverSQLite3:
		return sqlite.Open(dsn), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}

// GORM 返回底层 *gorm.DB.
func (d *DB) GORM() *gorm.DB {
	return d.db
}

// Driver 返回驱动类型.
func (d *DB) Driver() string {
	return d.config.Driver
}

// Conn 返回 ctx 中的事务，没有事务时返回连接池.
//
//	db.Conn(ctx).Find(&stocks)
func (d *DB) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return d.db.WithContext(ctx)
}

// InTransaction ctx 中是否已有事务.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

// Transaction 在事务中执行 fn.
//
// fn 返回错误或 panic 时回滚，否则提交. ctx 中已有事务时直接复用，由最外层负责提交.
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx := d.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("database: begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			d.logger.WithContext(ctx).With(logger.Err(rbErr)).Error("[Database] 事务回滚失败")
		}
		return err
	}

	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("database: commit transaction: %w", err)
	}
	return nil
}

// Ping 检查数据库连通性.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsHealthy 数据库是否可用.
func (d *DB) IsHealthy(ctx context.Context) bool {
	return d.Ping(ctx) == nil
}

// AutoMigrate 自动迁移表结构，配置关闭时跳过.
func (d *DB) AutoMigrate(models ...any) error {
	if !d.config.AutoMigrate {
		d.logger.Debug("[Database] 自动迁移已禁用，跳过表结构创建")
		return nil
	}

	if err := d.db.AutoMigrate(models...); err != nil {
		d.logger.With(logger.Err(err)).Error("[Database] 自动迁移失败")
		return err
	}
	d.logger.Debug("[Database] 表结构迁移完成")
	return nil
}

// Close 关闭数据库连接.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
