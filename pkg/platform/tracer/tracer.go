// Package tracer is a thin tracing facade so services can emit spans without
// importing OpenTelemetry directly. OTelTracer backs production; NoopTracer
// backs unit tests.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute      { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute   { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute     { return Attribute{Key: key, Value: int64(value)} }
func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

func Strings(key string, values []string) Attribute {
	return Attribute{Key: key, Value: append([]string(nil), values...)}
}

// Duration records a duration in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanOracleCheck      = "oracle.check"
	SpanChainAppend      = "consent.append"
	SpanChainVerify      = "consent.verify"
	SpanChainDerive      = "consent.derive"
	SpanBulkLookup       = "bulk.lookup"
	SpanBulkConsentCheck = "bulk.check"
)

// Attribute keys.
const (
	AttrCID           = "cid"
	AttrEventType     = "event_type"
	AttrUseType       = "use_type"
	AttrAllowed       = "allowed"
	AttrReason        = "reason"
	AttrChainLength   = "chain.length"
	AttrChainValid    = "chain.valid"
	AttrCacheHit      = "cache.hit"
	AttrBatchSize     = "batch.size"
	AttrVerifyChained = "verify_integrity"
)
