package ctxutil

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type requestScopeKey struct{}

// RequestScope identifies one inbound composite request. ProductID is the raw
// :id route parameter and is empty on routes that carry none.
type RequestScope struct {
	TraceID   string
	RequestID string
	Route     string
	ProductID string
}

func WithRequestScope(ctx context.Context, rs *RequestScope) context.Context {
	return context.WithValue(ctx, requestScopeKey{}, rs)
}

func RequestScopeFrom(ctx context.Context) *RequestScope {
	if rs, ok := ctx.Value(requestScopeKey{}).(*RequestScope); ok {
		return rs
	}
	return nil
}

// SpanAttributes lists the non-empty scope fields as span attributes.
func (rs *RequestScope) SpanAttributes() []attribute.KeyValue {
	if rs == nil {
		return nil
	}
	var attrs []attribute.KeyValue
	if rs.RequestID != "" {
		attrs = append(attrs, attribute.String("request.id", rs.RequestID))
	}
	if rs.Route != "" {
		attrs = append(attrs, attribute.String("http.route", rs.Route))
	}
	if rs.ProductID != "" {
		attrs = append(attrs, attribute.String("product.id", rs.ProductID))
	}
	return attrs
}

// LogFields returns the scope as key/value pairs for the structured logger.
func (rs *RequestScope) LogFields() []any {
	if rs == nil {
		return nil
	}
	var fields []any
	if rs.TraceID != "" {
		fields = append(fields, "trace_id", rs.TraceID)
	}
	if rs.RequestID != "" {
		fields = append(fields, "request_id", rs.RequestID)
	}
	if rs.ProductID != "" {
		fields = append(fields, "product_id", rs.ProductID)
	}
	return fields
}
