// Package health 提供存活与就绪检查.
//
// 存活检查只反映进程状态，就绪检查汇总数据库、Redis、消息代理等依赖的状态:
//
//	h := health.New(
//	    health.WithReadinessChecker(
//	        health.NewPingChecker("database", db),
//	        health.NewFuncChecker("broker", b.HealthCheck),
//	    ),
//	)
//	r.Get("/healthz", health.LivenessHandler(h))
//	r.Get("/readyz", health.ReadinessHandler(h))
package health

import (
	"context"
	"sync"
	"time"
)

// Status 健康状态.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// CheckResult 单个检查器的检查结果.
type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"-"`
	Latency  string        `json:"latency,omitempty"`
}

// Response 健康检查响应.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker 健康检查器接口.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Option Health 配置选项.
type Option func(*Health)

// Health 健康检查管理器.
type Health struct {
	mu                sync.RWMutex
	livenessCheckers  []Checker
	readinessCheckers []Checker
	timeout           time.Duration
	now               func() time.Time
}

// New 创建健康检查管理器.
func New(opts ...Option) *Health {
	h := &Health{
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithTimeout 设置单轮检查的超时时间.
func WithTimeout(d time.Duration) Option {
	return func(h *Health) {
		h.timeout = d
	}
}

// WithLivenessChecker 添加存活检查器.
func WithLivenessChecker(checkers ...Checker) Option {
	return func(h *Health) {
		h.livenessCheckers = append(h.livenessCheckers, checkers...)
	}
}

// WithReadinessChecker 添加就绪检查器.
func WithReadinessChecker(checkers ...Checker) Option {
	return func(h *Health) {
		h.readinessCheckers = append(h.readinessCheckers, checkers...)
	}
}

// AddReadinessChecker 动态添加就绪检查器.
func (h *Health) AddReadinessChecker(checkers ...Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessCheckers = append(h.readinessCheckers, checkers...)
}

// Liveness 执行存活检查，没有检查器时返回 UP.
func (h *Health) Liveness(ctx context.Context) Response {
	h.mu.RLock()
	checkers := h.livenessCheckers
	h.mu.RUnlock()
	return h.runChecks(ctx, checkers)
}

// Readiness 执行就绪检查，没有检查器时返回 UP.
func (h *Health) Readiness(ctx context.Context) Response {
	h.mu.RLock()
	checkers := h.readinessCheckers
	h.mu.RUnlock()
	return h.runChecks(ctx, checkers)
}

// runChecks 并发执行所有检查器，任一 DOWN 则整体 DOWN.
func (h *Health) runChecks(ctx context.Context, checkers []Checker) Response {
	resp := Response{Status: StatusUp, Timestamp: h.now().UTC()}
	if len(checkers) == 0 {
		return resp
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(checkers))
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			start := time.Now()
			result := c.Check(checkCtx)
			result.Duration = time.Since(start)
			result.Latency = result.Duration.String()

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}
	wg.Wait()

	for _, result := range results {
		if result.Status != StatusUp {
			resp.Status = StatusDown
			break
		}
	}
	resp.Checks = results
	return resp
}
