// Package cache 提供统一的键值缓存接口，支持 Redis 与内存两种实现.
//
// 库存服务用它保存消费幂等键，多实例部署时使用 Redis，单机或测试时使用内存实现:
//
//	c, err := cache.NewCache(cfg, log)
//	ok, err := c.SetNX(ctx, "inventory-service:idempotency:lock:evt-1", "1", 30*time.Second)
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// 缓存类型常量.
const (
	TypeRedis  = "redis"
	TypeMemory = "memory"
)

// Cache 缓存接口.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// SetNX 仅当键不存在时设置，返回是否设置成功.
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// NewCache 按配置类型创建缓存实例，log 不能为空.
func NewCache(config *Config, log logger.Logger) (Cache, error) {
	if log == nil {
		return nil, ErrNilLogger
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	switch config.Type {
	case TypeRedis:
		return NewRedisCache(config, log)
	case TypeMemory:
		return NewMemoryCache(config, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, config.Type)
	}
}
