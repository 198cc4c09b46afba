package logger

import "context"

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
	eventIDKey
)

// ContextWithTraceID 将 traceId 注入到 context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithSpanID 将 spanId 注入到 context.
func ContextWithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// ContextWithEventID 将正在处理的事件 ID 注入到 context.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// TraceIDFromContext 返回 context 中的 traceId.
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// EventIDFromContext 返回 context 中的事件 ID.
func EventIDFromContext(ctx context.Context) string {
	return stringValue(ctx, eventIDKey)
}

// FieldsFromContext 返回 context 中非空的 traceId、spanId、eventId 字段.
func FieldsFromContext(ctx context.Context) []Field {
	var fields []Field
	if v := stringValue(ctx, traceIDKey); v != "" {
		fields = append(fields, String("traceId", v))
	}
	if v := stringValue(ctx, spanIDKey); v != "" {
		fields = append(fields, String("spanId", v))
	}
	if v := stringValue(ctx, eventIDKey); v != "" {
		fields = append(fields, String("eventId", v))
	}
	return fields
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
