package telemetry

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Record is one finished span.
type Record struct {
	TraceID       trace.TraceID
	SpanID        trace.SpanID
	Name          string
	Kind          trace.SpanKind
	Start         time.Time
	End           time.Time
	Attributes    []attribute.KeyValue
	Status        codes.Code
	StatusMessage string
}

// Duration returns End - Start.
func (r Record) Duration() time.Duration { return r.End.Sub(r.Start) }

// Attr returns the value of the first attribute with key k.
func (r Record) Attr(k attribute.Key) (attribute.Value, bool) {
	for _, kv := range r.Attributes {
		if kv.Key == k {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// NewTraceID returns a random, valid trace id.
func NewTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

// NewSpanID returns a random, valid span id.
func NewSpanID() trace.SpanID {
	u := uuid.New()
	var id trace.SpanID
	copy(id[:], u[8:])
	return id
}
