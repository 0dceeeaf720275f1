package tracing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ledgercore/internal/errs"
	obscontext "github.com/smallbiznis/ledgercore/internal/observability/context"
	"github.com/smallbiznis/ledgercore/internal/orgcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ledgercore/http"

// GinMiddleware instruments inbound requests with the global tracer provider.
func GinMiddleware() gin.HandlerFunc {
	return NewGinMiddleware(otel.GetTracerProvider())
}

// NewGinMiddleware opens one server span per request. The span is renamed to
// the matched route after routing and tagged with the tenant resolved by the
// API middleware. Only server faults and ledger consistency errors fail the
// span; domain conflicts are kept as events.
func NewGinMiddleware(tp trace.TracerProvider) gin.HandlerFunc {
	tracer := tp.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withBaggageMember(ctx, "request_id", requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName(c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		if tenantID, ok := orgcontext.OrgIDFromContext(c.Request.Context()); ok {
			attrs = append(attrs, attribute.String("tenant.id", tenantID.String()))
		}

		var lastErr error
		if last := c.Errors.Last(); last != nil {
			lastErr = last.Err
		}
		if kind := errs.KindOf(lastErr); kind != "" {
			attrs = append(attrs,
				attribute.String("error.kind", string(kind)),
				attribute.String("error.code", errs.CodeOf(lastErr)),
			)
		}
		span.SetAttributes(SafeAttributes(attrs...)...)
		recordOutcome(span, status, lastErr)
	}
}

func recordOutcome(span trace.Span, status int, err error) {
	switch {
	case status >= http.StatusInternalServerError || errors.Is(err, errs.ErrConsistency):
		if safeErr := SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	case status == http.StatusConflict:
		span.AddEvent("ledger.conflict", trace.WithAttributes(attribute.String("error.code", errs.CodeOf(err))))
	}
}

func withBaggageMember(ctx context.Context, key, value string) context.Context {
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
