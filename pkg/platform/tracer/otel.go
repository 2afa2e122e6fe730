package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/requestcontext"
)

const instrumentationName = "cidledger"

// AttrRequestID is stamped on every span started under a request.
const AttrRequestID = "request_id"

// OTelTracer adapts an OpenTelemetry tracer to Tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

type OTelOption func(*OTelTracer)

// WithOTelTracer injects a pre-configured OpenTelemetry tracer.
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = t
	}
}

// NewOTel uses the global tracer provider unless a tracer is injected.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kv := toOTel(attrs)
	if id := requestcontext.RequestID(ctx); id != "" {
		kv = append(kv, attribute.String(AttrRequestID, id))
	}
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kv...),
	)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End marks the span failed only for server-side faults. Caller mistakes
// such as an unknown CID or a malformed scope are recorded but leave the
// status unset, so error-rate dashboards track the ledger, not its clients.
func (s *otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		if IsServerFault(err) {
			s.span.SetStatus(codes.Error, err.Error())
		}
	}
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(toOTel(attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toOTel(attrs)...))
}

// IsServerFault reports whether err should count against the service's own
// error rate. Errors without a domain code are assumed to be faults.
func IsServerFault(err error) bool {
	for _, code := range []dErrors.Code{
		dErrors.CodeNotFound,
		dErrors.CodeBadRequest,
		dErrors.CodeInvalidInput,
		dErrors.CodeValidation,
		dErrors.CodeConflict,
		dErrors.CodeUnauthorized,
		dErrors.CodeForbidden,
		dErrors.CodeInvalidState,
		dErrors.CodeInvalidTransition,
	} {
		if dErrors.HasCode(err, code) {
			return false
		}
	}
	return true
}

func toOTel(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case []string:
			out = append(out, attribute.StringSlice(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		case int64:
			out = append(out, attribute.Int64(a.Key, v))
		case float64:
			out = append(out, attribute.Float64(a.Key, v))
		}
	}
	return out
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
