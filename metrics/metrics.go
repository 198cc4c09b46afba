// Package metrics 提供 Prometheus 指标收集功能.
//
// PrometheusCollector 使用独立的注册表，除内置的 HTTP 请求指标外，
// 还支持按名称动态创建计数器、直方图和仪表盘，供 broker 等组件记录业务指标.
package metrics

import (
	"net/http"
	"time"
)

// Collector 指标收集器接口.
type Collector interface {
	// RecordHTTPRequest 记录一次 HTTP 请求.
	RecordHTTPRequest(method, route, statusCode string, duration time.Duration, requestSize, responseSize float64)
	// RecordPanic 记录一次被恢复的 panic.
	RecordPanic(component, operation string)

	Counter(name string, labels map[string]string)
	Histogram(name string, value float64, labels map[string]string)
	Gauge(name string, value float64, labels map[string]string)

	GetHandler() http.Handler
	GetPath() string
}

var _ Collector = (*PrometheusCollector)(nil)

// NewMetrics 创建指标收集器.
func NewMetrics(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	return NewPrometheus(cfg)
}

// MustNewMetrics 创建指标收集器，失败时 panic.
func MustNewMetrics(cfg *Config) *PrometheusCollector {
	c, err := NewMetrics(cfg)
	if err != nil {
		panic(err)
	}
	return c
}
