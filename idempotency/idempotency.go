// Package idempotency 提供消费端的幂等控制.
//
// Kafka 的至少一次投递会产生重复消息，中间件以事件ID为幂等键，
// 已成功处理过的事件直接跳过，处理失败时释放键以便重试.
//
// 工作原理:
//  1. 处理前以 SETNX 获取处理锁，锁带超时防止进程崩溃后永久占用
//  2. 处理成功后写入完成标记并删除锁
//  3. 处理失败时删除锁，由重试执行器再次调用
//
// 基本用法:
//
//	store := idempotency.NewStore(redisCache, idempotency.WithKeyPrefix("idempotency:"))
//	handler = idempotency.Middleware(store, idempotency.WithLogger(log))(handler)
package idempotency

import (
	"context"
	"errors"
	"time"
)

// 默认值.
const (
	DefaultTTL         = 24 * time.Hour
	DefaultLockTimeout = 30 * time.Second
	DefaultKeyPrefix   = "idempotency:"
)

// 预定义错误.
var (
	// ErrNilStore 幂等存储为空.
	ErrNilStore = errors.New("idempotency: 幂等存储为空")

	// ErrInProgress 相同幂等键的消息正在处理中.
	ErrInProgress = errors.New("idempotency: 消息正在处理中")

	// ErrEmptyKey 幂等键为空.
	ErrEmptyKey = errors.New("idempotency: 幂等键为空")
)

// Status 获取幂等键的结果.
type Status int

const (
	// StatusAcquired 已获取处理锁，调用方应执行处理.
	StatusAcquired Status = iota
	// StatusDone 该键已处理完成.
	StatusDone
	// StatusInProgress 该键正由其他消费者处理.
	StatusInProgress
)

// String 返回状态名称.
func (s Status) String() string {
	switch s {
	case StatusAcquired:
		return "acquired"
	case StatusDone:
		return "done"
	case StatusInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Store 幂等性存储接口.
type Store interface {
	// Acquire 尝试获取处理锁，lockTTL 到期后锁自动释放.
	Acquire(ctx context.Context, key string, lockTTL time.Duration) (Status, error)

	// Complete 写入完成标记并释放处理锁，标记在 ttl 后过期.
	Complete(ctx context.Context, key string, ttl time.Duration) error

	// Release 释放处理锁，不写入完成标记.
	Release(ctx context.Context, key string) error
}
