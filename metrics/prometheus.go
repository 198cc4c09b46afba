package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector Prometheus 指标收集器实现.
type PrometheusCollector struct {
	config *Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec
	panicTotal          *prometheus.CounterVec

	// 动态指标注册表
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	mu         sync.RWMutex

	registry *prometheus.Registry
}

// NewPrometheus 创建 Prometheus 指标收集器.
func NewPrometheus(cfg *Config) (*PrometheusCollector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "inventory"
	}
	namespace := cfg.Namespace

	// 独立注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		config:     cfg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		registry:   registry,
	}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 5),
		},
		[]string{"method", "route"},
	)

	c.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 5),
		},
		[]string{"method", "route"},
	)

	c.panicTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "panic_total",
			Help:      "Total number of panics recovered",
		},
		[]string{"component", "operation"},
	)

	toRegister := []prometheus.Collector{
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.httpRequestSize,
		c.httpResponseSize,
		c.panicTotal,
	}
	if cfg.EnableRuntime {
		toRegister = append(toRegister,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	for _, collector := range toRegister {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// RecordHTTPRequest 记录 HTTP 请求指标.
func (c *PrometheusCollector) RecordHTTPRequest(method, route, statusCode string, duration time.Duration, requestSize, responseSize float64) {
	c.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	if requestSize > 0 {
		c.httpRequestSize.WithLabelValues(method, route).Observe(requestSize)
	}
	c.httpResponseSize.WithLabelValues(method, route).Observe(responseSize)
}

// RecordPanic 记录 panic 事件.
func (c *PrometheusCollector) RecordPanic(component, operation string) {
	c.panicTotal.WithLabelValues(component, operation).Inc()
}

// Counter 增加计数器.
//
// 同名指标的 label 名称集合必须保持一致，否则该次记录会被忽略.
//
//	collector.Counter("broker_dlq_total", map[string]string{"topic": "inventory.events"})
func (c *PrometheusCollector) Counter(name string, labels map[string]string) {
	labelNames, labelValues := extractLabels(labels)

	counter := getOrRegister(c, c.counters, name, func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: c.config.Namespace,
				Name:      name,
				Help:      "Counter: " + name,
			},
			labelNames,
		)
	})
	if counter == nil {
		return
	}
	if m, err := counter.GetMetricWithLabelValues(labelValues...); err == nil {
		m.Inc()
	}
}

// Histogram 观察直方图.
//
//	collector.Histogram("broker_publish_duration_seconds", 0.012, map[string]string{"topic": "inventory.events"})
func (c *PrometheusCollector) Histogram(name string, value float64, labels map[string]string) {
	labelNames, labelValues := extractLabels(labels)

	histogram := getOrRegister(c, c.histograms, name, func() *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: c.config.Namespace,
				Name:      name,
				Help:      "Histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			labelNames,
		)
	})
	if histogram == nil {
		return
	}
	if m, err := histogram.GetMetricWithLabelValues(labelValues...); err == nil {
		m.Observe(value)
	}
}

// Gauge 设置仪表盘.
//
//	collector.Gauge("broker_connected", 1, nil)
func (c *PrometheusCollector) Gauge(name string, value float64, labels map[string]string) {
	labelNames, labelValues := extractLabels(labels)

	gauge := getOrRegister(c, c.gauges, name, func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: c.config.Namespace,
				Name:      name,
				Help:      "Gauge: " + name,
			},
			labelNames,
		)
	})
	if gauge == nil {
		return
	}
	if m, err := gauge.GetMetricWithLabelValues(labelValues...); err == nil {
		m.Set(value)
	}
}

// getOrRegister 查找或创建并注册一个动态指标，注册失败时返回 nil.
func getOrRegister[V prometheus.Collector](c *PrometheusCollector, registry map[string]V, name string, create func() V) V {
	c.mu.RLock()
	vec, exists := registry[name]
	c.mu.RUnlock()
	if exists {
		return vec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if vec, exists = registry[name]; exists {
		return vec
	}
	vec = create()
	if err := c.registry.Register(vec); err != nil {
		var zero V
		return zero
	}
	registry[name] = vec
	return vec
}

// extractLabels 从 map 中提取 label 名称和值，按 key 排序保证顺序稳定.
func extractLabels(labels map[string]string) ([]string, []string) {
	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}
	sort.Strings(labelNames)

	labelValues := make([]string, 0, len(labels))
	for _, k := range labelNames {
		labelValues = append(labelValues, labels[k])
	}

	return labelNames, labelValues
}

// GetHandler 返回 metrics 的 HTTP 处理器.
func (c *PrometheusCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// GetPath 返回 metrics 路径.
func (c *PrometheusCollector) GetPath() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}
