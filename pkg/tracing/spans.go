package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ColdRoomAttributes identifies a cold room command on its span
func ColdRoomAttributes(action, coldRoomID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("coldroom.action", action)}
	if coldRoomID != "" {
		attrs = append(attrs, attribute.String("coldroom.id", coldRoomID))
	}
	return attrs
}

// TracedOperation wraps an operation in a span and records its outcome
func TracedOperation[T any](ctx context.Context, tracer trace.Tracer, spanName string, attrs []attribute.KeyValue, operation func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer span.End()

	result, err := operation(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}
