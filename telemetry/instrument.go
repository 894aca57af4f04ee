package telemetry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mcp-obs/mcp-server-go/auth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentConfig controls which operations are recorded.
type InstrumentConfig struct {
	ServerSlug string
	// SamplingRate is the fraction of operations recorded: >= 1 records
	// everything, <= 0 nothing, otherwise a trace-id ratio.
	SamplingRate float64
	// SkipOperations are passed through unrecorded.
	SkipOperations []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Instrument returns middleware that records one span per operation on rec.
// Place it inside the auth middleware so the caller's identity is attached.
func Instrument(rec Recorder, cfg InstrumentConfig) auth.HandlerMiddleware {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	skip := append([]string(nil), cfg.SkipOperations...)
	return func(next auth.Handler) auth.Handler {
		return func(ctx context.Context, req *auth.Request) (any, error) {
			if rec == nil || req == nil || slices.Contains(skip, req.Operation) {
				return next(ctx, req)
			}
			traceID := NewTraceID()
			if !sampled(traceID, cfg.SamplingRate) {
				return next(ctx, req)
			}

			name, opType := spanFor(req.Operation)
			attrs := []attribute.KeyValue{
				OperationTypeKey.String(opType),
				ServerSlugKey.String(cfg.ServerSlug),
				TransportKey.String(req.Transport.String()),
			}
			if opType == OpToolCall {
				attrs = append(attrs,
					ToolNameKey.String(req.Operation),
					ToolInputSizeKey.Int(len(req.Arguments)),
				)
			}
			if ac, ok := auth.FromContext(ctx); ok {
				if ac.UserID != "" {
					attrs = append(attrs, UserIDKey.String(ac.UserID))
				}
				if ac.Email != "" {
					attrs = append(attrs, UserEmailKey.String(ac.Email))
				}
			}
			if req.Session != nil && req.Session.ID != "" {
				attrs = append(attrs, SessionIDKey.String(req.Session.ID))
			}

			start := now()
			out, err := next(ctx, req)
			end := now()

			r := Record{
				TraceID: traceID,
				SpanID:  NewSpanID(),
				Name:    name,
				Kind:    trace.SpanKindServer,
				Start:   start,
				End:     end,
			}
			if err != nil {
				attrs = append(attrs,
					ToolSuccessKey.Bool(false),
					ErrorTypeKey.String(errorType(err)),
					ErrorMessageKey.String(err.Error()),
				)
				r.Status, r.StatusMessage = codes.Error, err.Error()
			} else {
				attrs = append(attrs, ToolSuccessKey.Bool(true))
				if b, merr := json.Marshal(out); merr == nil {
					attrs = append(attrs, ToolOutputSizeKey.Int(len(b)))
				}
				r.Status = codes.Ok
			}
			attrs = append(attrs, DurationMillisKey.Float64(float64(end.Sub(start).Microseconds())/1000))
			r.Attributes = attrs

			rec.Record(ctx, r)
			return out, err
		}
	}
}

func spanFor(op string) (name, opType string) {
	if s, ok := methodSpans[op]; ok {
		return s[0], s[1]
	}
	return SpanToolCall, OpToolCall
}

// sampled applies the trace-id ratio rule: the low 63 bits of the id's
// second half are compared against rate * 2^63.
func sampled(id trace.TraceID, rate float64) bool {
	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	}
	bound := uint64(rate * (1 << 63))
	x := binary.BigEndian.Uint64(id[8:16]) >> 1
	return x < bound
}

func errorType(err error) string {
	var f *auth.Failure
	if errors.As(err, &f) {
		return f.Kind.String()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
