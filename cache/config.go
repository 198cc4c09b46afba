package cache

import "time"

// 默认配置值.
const (
	DefaultPoolSize        = 10
	DefaultTimeout         = 5 * time.Second
	DefaultReadTimeout     = 3 * time.Second
	DefaultWriteTimeout    = 3 * time.Second
	DefaultMaxRetries      = 3
	DefaultCleanupInterval = time.Minute
	DefaultMaxSize         = 100000
)

// Config 缓存配置.
type Config struct {
	// Type 缓存类型：redis, memory
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	Addr     string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`

	// KeyPrefix 所有键的前缀
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// CleanupInterval 内存实现清理过期键的间隔
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	// MaxSize 内存实现的最大键数
	MaxSize int `json:"max_size" yaml:"max_size" mapstructure:"max_size"`
}

// NewMemoryConfig 返回内存缓存配置.
func NewMemoryConfig() *Config {
	cfg := &Config{Type: TypeMemory}
	cfg.ApplyDefaults()
	return cfg
}

// NewRedisConfig 返回 Redis 缓存配置.
func NewRedisConfig(addr string) *Config {
	cfg := &Config{Type: TypeRedis, Addr: addr}
	cfg.ApplyDefaults()
	return cfg
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	switch c.Type {
	case "", TypeMemory:
	case TypeRedis:
		if c.Addr == "" {
			return &ConfigError{Field: "addr", Message: "redis 地址不能为空"}
		}
	default:
		return &ConfigError{Field: "type", Message: "不支持的缓存类型 " + c.Type}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "db", Message: "不能为负数"}
	}
	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeMemory
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
}
