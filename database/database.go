// Package database 提供基于 GORM 的关系型数据库连接与事务管理.
package database

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// 支持的驱动类型.
const (
	DriverMySQL      = "mysql"
	DriverPostgres   = "postgres"
	DriverPostgreSQL = "postgresql"
	DriverSQLite     = "sqlite"
	DriverSQLite3    = "sqlite3"
)

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("database: 配置为空")
	// ErrNilLogger 日志记录器为空.
	ErrNilLogger = errors.New("database: 日志记录器为空")
	// ErrEmptyDriver 驱动类型为空.
	ErrEmptyDriver = errors.New("database: 驱动类型为空")
	// ErrEmptyDSN 连接字符串为空.
	ErrEmptyDSN = errors.New("database: 连接字符串为空")
	// ErrUnsupportedDriver 不支持的驱动类型.
	ErrUnsupportedDriver = errors.New("database: 不支持的驱动类型")
	// ErrRegisterTracingPlugin 注册追踪插件失败.
	ErrRegisterTracingPlugin = errors.New("database: 注册追踪插件失败")
)

// Config 数据库配置.
type Config struct {
	// Driver 数据库驱动类型：mysql, postgres, sqlite
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN 数据库连接字符串，为空时由 Endpoint 拼接
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// Endpoint 分项连接参数，SQLite 只能使用 DSN
	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// AutoMigrate 启动时是否自动迁移表结构
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" mapstructure:"auto_migrate"`

	// Pool 连接池配置
	Pool PoolConfig `json:"pool" yaml:"pool" mapstructure:"pool"`

	// SlowThreshold 慢查询阈值
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold" mapstructure:"slow_threshold"`

	// LogLevel 日志级别: silent, error, warn, info
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// EnableTracing 启用链路追踪
	EnableTracing bool `json:"enable_tracing" yaml:"enable_tracing" mapstructure:"enable_tracing"`
}

// EndpointConfig 分项连接参数.
type EndpointConfig struct {
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	User     string `json:"user" yaml:"user" mapstructure:"user"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	// SSL 启用加密连接，生产环境强制开启
	SSL bool `json:"ssl" yaml:"ssl" mapstructure:"ssl"`
}

// PoolConfig 连接池配置.
type PoolConfig struct {
	MaxOpen     int           `json:"max_open" yaml:"max_open" mapstructure:"max_open"`
	MaxIdle     int           `json:"max_idle" yaml:"max_idle" mapstructure:"max_idle"`
	MaxLifetime time.Duration `json:"max_lifetime" yaml:"max_lifetime" mapstructure:"max_lifetime"`
	MaxIdleTime time.Duration `json:"max_idle_time" yaml:"max_idle_time" mapstructure:"max_idle_time"`
}

// DefaultConfig 返回默认配置.
//
// 连接池上限与库存服务原有的 pg 连接池一致（最少 2，最多 20）.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverPostgres,
		Endpoint: EndpointConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "ecommerce",
			User:     "ecommerce_user",
			Password: "ecommerce_password",
		},
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      "warn",
		Pool: PoolConfig{
			MaxOpen:     20,
			MaxIdle:     2,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		},
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return ErrEmptyDriver
	}
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverPostgreSQL, DriverSQLite, DriverSQLite3:
	default:
		return ErrUnsupportedDriver
	}
	if c.ConnectionString() == "" {
		return ErrEmptyDSN
	}
	return nil
}

// ConnectionString 返回连接字符串.
//
// 设置了 DSN 时直接使用，否则按驱动由 Endpoint 拼接；两者都缺失时返回空串.
func (c *Config) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	e := c.Endpoint
	if e.Host == "" {
		return ""
	}
	switch c.Driver {
	case DriverPostgres, DriverPostgreSQL:
		port := e.Port
		if port == 0 {
			port = 5432
		}
		sslMode := "disable"
		if e.SSL {
			sslMode = "require"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			e.Host, port, e.User, e.Password, e.Name, sslMode)
	case DriverMySQL:
		port := e.Port
		if port == 0 {
			port = 3306
		}
		params := url.Values{}
		params.Set("parseTime", "true")
		params.Set("charset", "utf8mb4")
		if e.SSL {
			params.Set("tls", "true")
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", e.User, e.Password, e.Host, port, e.Name, params.Encode())
	default:
		return ""
	}
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Pool.MaxOpen == 0 {
		c.Pool.MaxOpen = 20
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 2
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = time.Hour
	}
	if c.Pool.MaxIdleTime == 0 {
		c.Pool.MaxIdleTime = 10 * time.Minute
	}
}

// Open 打开数据库连接.
func Open(config *Config, log logger.Logger) (*DB, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return openGORM(config, log)
}

// MustOpen 打开数据库连接，失败时 panic.
func MustOpen(config *Config, log logger.Logger) *DB {
	db, err := Open(config, log)
	if err != nil {
		panic(err)
	}
	return db
}
