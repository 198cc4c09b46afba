package idempotency

import (
	"context"
	"time"

	"github.com/Tsukikage7/inventory-service/cache"
)

// CacheStore 基于 cache.Cache 的幂等性存储.
//
// 使用 Redis 缓存时适用于多实例部署，使用内存缓存时适用于单机或测试场景.
type CacheStore struct {
	cache     cache.Cache
	keyPrefix string
	now       func() time.Time
}

var _ Store = (*CacheStore)(nil)

// StoreOption 存储配置选项.
type StoreOption func(*CacheStore)

// WithKeyPrefix 设置键前缀，默认 "idempotency:".
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *CacheStore) {
		s.keyPrefix = prefix
	}
}

// NewStore 创建基于缓存的幂等性存储.
func NewStore(c cache.Cache, opts ...StoreOption) *CacheStore {
	s := &CacheStore{
		cache:     c,
		keyPrefix: DefaultKeyPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CacheStore) doneKey(key string) string {
	return s.keyPrefix + key
}

func (s *CacheStore) lockKey(key string) string {
	return s.keyPrefix + "lock:" + key
}

// Acquire 已有完成标记时返回 StatusDone，锁被占用时返回 StatusInProgress.
func (s *CacheStore) Acquire(ctx context.Context, key string, lockTTL time.Duration) (Status, error) {
	if key == "" {
		return StatusAcquired, ErrEmptyKey
	}

	done, err := s.cache.Exists(ctx, s.doneKey(key))
	if err != nil {
		return StatusAcquired, err
	}
	if done {
		return StatusDone, nil
	}

	ok, err := s.cache.SetNX(ctx, s.lockKey(key), s.now().UTC().Format(time.RFC3339Nano), lockTTL)
	if err != nil {
		return StatusAcquired, err
	}
	if !ok {
		return StatusInProgress, nil
	}
	return StatusAcquired, nil
}

// Complete 写入完成标记并删除处理锁.
func (s *CacheStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, s.doneKey(key), s.now().UTC().Format(time.RFC3339Nano), ttl); err != nil {
		return err
	}
	return s.cache.Del(ctx, s.lockKey(key))
}

// Release 删除处理锁.
func (s *CacheStore) Release(ctx context.Context, key string) error {
	return s.cache.Del(ctx, s.lockKey(key))
}
