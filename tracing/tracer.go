package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// NewTracer 创建 TracerProvider 并设置为全局实例.
//
// 未启用时返回不导出任何数据的 TracerProvider，全局实例保持不变.
// 启用时同时设置 W3C TraceContext 与 Baggage 传播器，broker 依赖它在消息头中传递追踪上下文.
func NewTracer(cfg *Config, serviceName, serviceVersion string) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}

	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}

	endpoint, insecure := parseEndpoint(cfg.OTLP.Endpoint, cfg.OTLP.Insecure)
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.OTLP.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.OTLP.Timeout))
	}
	if len(cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLP.Headers))
	}

	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, errors.Join(ErrCreateExporter, err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, errors.Join(ErrCreateResource, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate(cfg.SamplingRate)))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	return tp, nil
}

// MustNewTracer 创建 TracerProvider，失败时 panic.
func MustNewTracer(cfg *Config, serviceName, serviceVersion string) *sdktrace.TracerProvider {
	tp, err := NewTracer(cfg, serviceName, serviceVersion)
	if err != nil {
		panic(err)
	}
	return tp
}

// Propagator 返回 W3C TraceContext + Baggage 复合传播器.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// parseEndpoint 去掉协议前缀，http:// 视为明文传输.
func parseEndpoint(raw string, insecure bool) (string, bool) {
	endpoint := strings.TrimSpace(raw)
	if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return strings.TrimSuffix(after, "/"), true
	}
	if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		return strings.TrimSuffix(after, "/"), false
	}
	return strings.TrimSuffix(endpoint, "/"), insecure
}

// samplingRate 超出 (0, 1] 的值按全量采样处理.
func samplingRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1.0
	}
	return rate
}
