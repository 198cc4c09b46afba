package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Tsukikage7/inventory-service/logger"
)

// memoryCache 内存缓存实现.
type memoryCache struct {
	mu      sync.RWMutex
	data    map[string]*entry
	config  *Config
	logger  logger.Logger
	closeCh chan struct{}
	once    sync.Once
	now     func() time.Time
}

// entry 缓存项，expireAt 为零值表示永不过期.
type entry struct {
	value    string
	expireAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// NewMemoryCache 创建内存缓存并启动过期清理协程.
func NewMemoryCache(config *Config, log logger.Logger) (Cache, error) {
	if log == nil {
		return nil, ErrNilLogger
	}
	if config == nil {
		config = NewMemoryConfig()
	}
	config.ApplyDefaults()

	c := newMemoryCache(config, log)
	go c.cleanupLoop()

	log.With(logger.Int("maxSize", config.MaxSize)).Debug("[Cache] 内存缓存已初始化")
	return c, nil
}

func newMemoryCache(config *Config, log logger.Logger) *memoryCache {
	return &memoryCache{
		data:    make(map[string]*entry),
		config:  config,
		logger:  log,
		closeCh: make(chan struct{}),
		now:     time.Now,
	}
}

func (m *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.closeCh:
			return
		}
	}
}

// cleanup 删除全部过期项.
func (m *memoryCache) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

func (m *memoryCache) key(k string) string {
	return m.config.KeyPrefix + k
}

func (m *memoryCache) newEntry(value string, ttl time.Duration) *entry {
	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	return e
}

// putLocked 写入缓存项，容量已满时先淘汰一项，调用方需持有写锁.
func (m *memoryCache) putLocked(key string, e *entry) {
	if _, ok := m.data[key]; !ok && len(m.data) >= m.config.MaxSize {
		m.evictLocked()
	}
	m.data[key] = e
}

// evictLocked 优先淘汰过期项，没有过期项时淘汰最早过期的一项.
func (m *memoryCache) evictLocked() {
	now := m.now()
	var (
		victim   string
		earliest time.Time
	)
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			return
		}
		if victim == "" || (!e.expireAt.IsZero() && (earliest.IsZero() || e.expireAt.Before(earliest))) {
			victim, earliest = key, e.expireAt
		}
	}
	if victim != "" {
		delete(m.data, victim)
	}
}

// lookup 读取未过期的缓存项，过期项被顺带删除.
func (m *memoryCache) lookup(key string) (*entry, bool) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(m.now()) {
		m.mu.Lock()
		if cur, ok := m.data[key]; ok && cur == e {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e, true
}

func (m *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	data, err := serialize(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(m.key(key), m.newEntry(data, ttl))
	return nil
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	e, ok := m.lookup(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *memoryCache) Del(ctx context.Context, keys ...string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, m.key(key))
	}
	return nil
}

func (m *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	_, ok := m.lookup(m.key(key))
	return ok, nil
}

func (m *memoryCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	data, err := serialize(value)
	if err != nil {
		return false, err
	}

	k := m.key(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[k]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.putLocked(k, m.newEntry(data, ttl))
	return true, nil
}

// Ping 内存缓存未关闭时始终可用.
func (m *memoryCache) Ping(ctx context.Context) error {
	return m.checkOpen()
}

func (m *memoryCache) Close() error {
	m.once.Do(func() {
		close(m.closeCh)
		m.logger.Debug("[Cache] 内存缓存已关闭")
	})
	return nil
}

func (m *memoryCache) checkOpen() error {
	select {
	case <-m.closeCh:
		return ErrClosed
	default:
		return nil
	}
}

func (m *memoryCache) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
