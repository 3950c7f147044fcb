package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span with the given name and attributes. If
// ctx carries a request ID (see WithRequestID), it is attached to the
// span automatically so every span a dispatched action opens shares
// the same correlation ID.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id, ok := RequestIDFromContext(ctx); ok {
		attrs = append(attrs, AttrRequestID.String(id))
	}
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID attaches the correlation ID of a queued action request
// to ctx so every span and log line the dispatch produces can be tied
// back to the ActionRequest that triggered it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation ID attached by
// WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan records err on span (if non-nil), marks the status accordingly,
// and ends the span. Callers use it from a single deferred closure that
// closes over a named error return, so the result reflects the
// function's actual outcome rather than a snapshot taken at defer time.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanOK(span)
	}
	span.End()
}

// Common attribute keys for guestsyncd spans
var (
	AttrDomainName = attribute.Key("guestsyncd.domain.name")
	AttrUnitName   = attribute.Key("guestsyncd.unit.name")
	AttrAction     = attribute.Key("guestsyncd.action")
	AttrSide       = attribute.Key("guestsyncd.side")
	AttrDurationMs = attribute.Key("guestsyncd.duration_ms")
	AttrRequestID  = attribute.Key("guestsyncd.request.id")
)
