package broker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// brokerTracer 消息代理追踪器.
//
// 使用全局 TracerProvider 与传播器，需先通过 tracing.NewTracer 初始化.
type brokerTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newBrokerTracer(serviceName string) *brokerTracer {
	return &brokerTracer{
		tracer:     otel.Tracer(serviceName),
		propagator: otel.GetTextMapPropagator(),
	}
}

// startProducerSpan 开始生产者 span.
func (t *brokerTracer) startProducerSpan(ctx context.Context, operation string, topics ...string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.operation", operation),
	}
	if len(topics) == 1 {
		attrs = append(attrs, attribute.String("messaging.destination.name", topics[0]))
	} else {
		attrs = append(attrs, attribute.StringSlice("messaging.destination.names", topics))
	}
	return t.tracer.Start(ctx, "kafka."+operation,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...),
	)
}

// startConsumerSpan 开始消费者 span.
func (t *brokerTracer) startConsumerSpan(ctx context.Context, topic string, partition int32, offset int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.operation", "process"),
			attribute.Int64("messaging.kafka.partition", int64(partition)),
			attribute.Int64("messaging.kafka.offset", offset),
		),
	)
}

// injectHeaders 将追踪上下文注入消息头.
func (t *brokerTracer) injectHeaders(ctx context.Context, headers map[string]string) {
	t.propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// extractContext 从消息头提取追踪上下文.
func (t *brokerTracer) extractContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return t.propagator.Extract(ctx, propagation.MapCarrier(headers))
}

// setSpanError 记录 span 错误.
func setSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
