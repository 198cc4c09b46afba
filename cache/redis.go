package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/inventory-service/logger"
)

// redisCache Redis 缓存实现.
type redisCache struct {
	client *redis.Client
	config *Config
	logger logger.Logger
}

// NewRedisCache 创建 Redis 缓存，创建时执行一次 PING 验证连接.
func NewRedisCache(config *Config, log logger.Logger) (Cache, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	if config.Addr == "" {
		return nil, ErrEmptyAddr
	}
	config.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		MaxRetries:   config.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.With(logger.String("addr", config.Addr), logger.Err(err)).Error("[Cache] Redis 连接失败")
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	log.With(
		logger.String("addr", config.Addr),
		logger.Int("db", config.DB),
	).Info("[Cache] Redis 已连接")

	return newRedisCache(client, config, log), nil
}

func newRedisCache(client *redis.Client, config *Config, log logger.Logger) *redisCache {
	return &redisCache{client: client, config: config, logger: log}
}

func (r *redisCache) key(k string) string {
	return r.config.KeyPrefix + k
}

func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := serialize(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.logError("SET", key, err)
		return err
	}
	return nil
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		r.logError("GET", key, err)
		return "", err
	}
	return result, nil
}

func (r *redisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.key(k)
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		r.logError("DEL", keys[0], err)
		return err
	}
	return nil
}

func (r *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		r.logError("EXISTS", key, err)
		return false, err
	}
	return n > 0, nil
}

func (r *redisCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := serialize(value)
	if err != nil {
		return false, err
	}
	ok, err := r.client.SetNX(ctx, r.key(key), data, ttl).Result()
	if err != nil {
		r.logError("SETNX", key, err)
		return false, err
	}
	return ok, nil
}

func (r *redisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCache) Close() error {
	return r.client.Close()
}

func (r *redisCache) logError(cmd, key string, err error) {
	r.logger.With(
		logger.String("cmd", cmd),
		logger.String("key", key),
		logger.Err(err),
	).Error("[Cache] Redis 命令失败")
}
