package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/inventory-service/logger"
)

// DatabaseTestSuite 数据库配置与连接测试套件.
type DatabaseTestSuite struct {
	suite.Suite
	logger logger.Logger
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}

func (s *DatabaseTestSuite) SetupSuite() {
	log, err := logger.NewLogger(logger.DefaultConfig())
	s.Require().NoError(err)
	s.logger = log
}

func (s *DatabaseTestSuite) TearDownSuite() {
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func (s *DatabaseTestSuite) TestDefaultConfig() {
	cfg := DefaultConfig()

	s.Equal(DriverPostgres, cfg.Driver)
	s.Empty(cfg.DSN)
	s.Equal("host=localhost port=5432 user=ecommerce_user password=ecommerce_password dbname=ecommerce sslmode=disable", cfg.ConnectionString())
	s.Equal(200*time.Millisecond, cfg.SlowThreshold)
	s.Equal(20, cfg.Pool.MaxOpen)
	s.Equal(2, cfg.Pool.MaxIdle)
	s.NoError(cfg.Validate())
}

func (s *DatabaseTestSuite) TestConfig_Validate() {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{"empty driver", &Config{DSN: "test"}, ErrEmptyDriver},
		{"empty dsn", &Config{Driver: DriverMySQL}, ErrEmptyDSN},
		{"unsupported driver", &Config{Driver: "oracle", DSN: "x"}, ErrUnsupportedDriver},
		{"valid mysql", &Config{Driver: DriverMySQL, DSN: "root:pass@tcp(localhost:3306)/test"}, nil},
		{"valid postgresql alias", &Config{Driver: DriverPostgreSQL, DSN: "host=localhost"}, nil},
		{"postgres endpoint", &Config{Driver: DriverPostgres, Endpoint: EndpointConfig{Host: "db"}}, nil},
		{"sqlite needs dsn", &Config{Driver: DriverSQLite, Endpoint: EndpointConfig{Host: "db"}}, ErrEmptyDSN},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				s.ErrorIs(err, tt.wantErr)
			} else {
				s.NoError(err)
			}
		})
	}
}

func (s *DatabaseTestSuite) TestConfig_ConnectionString() {
	endpoint := EndpointConfig{Host: "db", Name: "ecommerce", User: "svc", Password: "pw", SSL: true}

	pg := &Config{Driver: DriverPostgres, Endpoint: endpoint}
	s.Equal("host=db port=5432 user=svc password=pw dbname=ecommerce sslmode=require", pg.ConnectionString())

	my := &Config{Driver: DriverMySQL, Endpoint: endpoint}
	s.Equal("svc:pw@tcp(db:3306)/ecommerce?charset=utf8mb4&parseTime=true&tls=true", my.ConnectionString())

	explicit := &Config{Driver: DriverPostgres, DSN: "host=other", Endpoint: endpoint}
	s.Equal("host=other", explicit.ConnectionString())
}

func (s *DatabaseTestSuite) TestConfig_ApplyDefaults() {
	cfg := &Config{Pool: PoolConfig{MaxOpen: 5}}
	cfg.ApplyDefaults()

	s.Equal(200*time.Millisecond, cfg.SlowThreshold)
	s.Equal("warn", cfg.LogLevel)
	s.Equal(5, cfg.Pool.MaxOpen)
	s.Equal(2, cfg.Pool.MaxIdle)
	s.Equal(time.Hour, cfg.Pool.MaxLifetime)
	s.Equal(10*time.Minute, cfg.Pool.MaxIdleTime)
}

func (s *DatabaseTestSuite) TestOpen_Errors() {
	_, err := Open(nil, s.logger)
	s.ErrorIs(err, ErrNilConfig)

	_, err = Open(&Config{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	s.ErrorIs(err, ErrNilLogger)

	_, err = Open(&Config{DSN: ":memory:"}, s.logger)
	s.ErrorIs(err, ErrEmptyDriver)

	_, err = Open(&Config{Driver: "unknown", DSN: "test"}, s.logger)
	s.ErrorIs(err, ErrUnsupportedDriver)
}

func (s *DatabaseTestSuite) TestOpen_SQLite() {
	db, err := Open(&Config{Driver: DriverSQLite, DSN: ":memory:"}, s.logger)
	s.Require().NoError(err)
	defer db.Close()

	s.NotNil(db.GORM())
	s.Equal(DriverSQLite, db.Driver())
	s.NoError(db.Ping(context.Background()))
	s.True(db.IsHealthy(context.Background()))
}

func (s *DatabaseTestSuite) TestMustOpen() {
	s.Panics(func() { MustOpen(nil, s.logger) })
	s.NotPanics(func() {
		db := MustOpen(&Config{Driver: DriverSQLite3, DSN: ":memory:"}, s.logger)
		_ = db.Close()
	})
}

func (s *DatabaseTestSuite) TestIsHealthy_Closed() {
	db, err := Open(&Config{Driver: DriverSQLite, DSN: ":memory:"}, s.logger)
	s.Require().NoError(err)
	s.Require().NoError(db.Close())

	s.False(db.IsHealthy(context.Background()))
}

// GORMTestSuite 事务与迁移测试套件.
type GORMTestSuite struct {
	suite.Suite
	logger logger.Logger
	db     *DB
}

func TestGORMSuite(t *testing.T) {
	suite.Run(t, new(GORMTestSuite))
}

type testItem struct {
	BaseModel[uint]
	SKU      string `gorm:"size:64;uniqueIndex"`
	Quantity int
}

func (s *GORMTestSuite) SetupTest() {
	log, err := logger.NewLogger(logger.DefaultConfig())
	s.Require().NoError(err)
	s.logger = log

	// 单连接保证 :memory: 数据库在各查询间共享
	s.db, err = Open(&Config{
		Driver:      DriverSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
		Pool:        PoolConfig{MaxOpen: 1, MaxIdle: 1},
	}, s.logger)
	s.Require().NoError(err)
	s.Require().NoError(s.db.AutoMigrate(&testItem{}))
}

func (s *GORMTestSuite) TearDownTest() {
	_ = s.db.Close()
	_ = s.logger.Close()
}

func (s *GORMTestSuite) count() int64 {
	var n int64
	s.Require().NoError(s.db.Conn(context.Background()).Model(&testItem{}).Count(&n).Error)
	return n
}

func (s *GORMTestSuite) TestAutoMigrate() {
	var n int64
	err := s.db.GORM().Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='test_items'").Scan(&n).Error
	s.NoError(err)
	s.Equal(int64(1), n)
}

func (s *GORMTestSuite) TestAutoMigrate_Disabled() {
	db, err := Open(&Config{Driver: DriverSQLite, DSN: ":memory:", Pool: PoolConfig{MaxOpen: 1}}, s.logger)
	s.Require().NoError(err)
	defer db.Close()

	s.NoError(db.AutoMigrate(&testItem{}))
	s.False(db.GORM().Migrator().HasTable(&testItem{}))
}

func (s *GORMTestSuite) TestTransaction_Commit() {
	ctx := context.Background()

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		s.True(InTransaction(ctx))
		return s.db.Conn(ctx).Create(&testItem{SKU: "a", Quantity: 1}).Error
	})

	s.NoError(err)
	s.Equal(int64(1), s.count())
}

func (s *GORMTestSuite) TestTransaction_RollbackOnError() {
	ctx := context.Background()
	failure := errors.New("insufficient stock")

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.db.Conn(ctx).Create(&testItem{SKU: "a", Quantity: 1}).Error)
		return failure
	})

	s.Same(failure, err)
	s.Equal(int64(0), s.count())
}

func (s *GORMTestSuite) TestTransaction_RollbackOnPanic() {
	ctx := context.Background()

	s.Panics(func() {
		_ = s.db.Transaction(ctx, func(ctx context.Context) error {
			s.Require().NoError(s.db.Conn(ctx).Create(&testItem{SKU: "a", Quantity: 1}).Error)
			panic("boom")
		})
	})
	s.Equal(int64(0), s.count())
}

func (s *GORMTestSuite) TestTransaction_NestedReusesOuter() {
	ctx := context.Background()
	failure := errors.New("outer failed")

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		inner := s.db.Transaction(ctx, func(ctx context.Context) error {
			return s.db.Conn(ctx).Create(&testItem{SKU: "inner", Quantity: 2}).Error
		})
		s.Require().NoError(inner)
		return failure
	})

	s.ErrorIs(err, failure)
	s.Equal(int64(0), s.count())
}

func (s *GORMTestSuite) TestConn_WithoutTransaction() {
	s.False(InTransaction(context.Background()))
	s.NoError(s.db.Conn(context.Background()).Create(&testItem{SKU: "x"}).Error)

	var item testItem
	s.NoError(s.db.Conn(context.Background()).Where("sku = ?", "x").First(&item).Error)
	s.NotZero(item.ID)
	s.False(item.CreatedTime.IsZero())
}
