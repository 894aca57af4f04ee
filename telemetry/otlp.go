package telemetry

import (
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	scopeName    = "mcp-obs-server-sdk"
	scopeVersion = "1.0.0"
)

// Resource identifies the process emitting records.
type Resource struct {
	ServiceName    string
	ServiceVersion string
	ServerSlug     string
}

// Attributes returns the resource as OTel attributes.
func (r Resource) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		ServiceNameKey.String(r.ServiceName),
		ServiceVersionKey.String(r.ServiceVersion),
		ServerSlugKey.String(r.ServerSlug),
	}
}

// OTLP/JSON shapes (opentelemetry-proto, JSON mapping).
type (
	otlpPayload struct {
		ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
	}
	otlpResourceSpans struct {
		Resource   otlpResource     `json:"resource"`
		ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
	}
	otlpResource struct {
		Attributes []otlpKeyValue `json:"attributes"`
	}
	otlpScopeSpans struct {
		Scope otlpScope  `json:"scope"`
		Spans []otlpSpan `json:"spans"`
	}
	otlpScope struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	}
	otlpSpan struct {
		TraceID           string         `json:"traceId"`
		SpanID            string         `json:"spanId"`
		Name              string         `json:"name"`
		Kind              int            `json:"kind"`
		StartTimeUnixNano string         `json:"startTimeUnixNano"`
		EndTimeUnixNano   string         `json:"endTimeUnixNano"`
		Attributes        []otlpKeyValue `json:"attributes,omitempty"`
		Status            otlpStatus     `json:"status"`
	}
	otlpStatus struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	}
	otlpKeyValue struct {
		Key   string    `json:"key"`
		Value otlpValue `json:"value"`
	}
	otlpValue struct {
		StringValue *string  `json:"stringValue,omitempty"`
		BoolValue   *bool    `json:"boolValue,omitempty"`
		IntValue    *string  `json:"intValue,omitempty"`
		DoubleValue *float64 `json:"doubleValue,omitempty"`
	}
)

// EncodeOTLP renders records as an OTLP/JSON trace export request.
func EncodeOTLP(res Resource, recs []Record) ([]byte, error) {
	spans := make([]otlpSpan, 0, len(recs))
	for _, r := range recs {
		spans = append(spans, otlpSpan{
			TraceID:           r.TraceID.String(),
			SpanID:            r.SpanID.String(),
			Name:              r.Name,
			Kind:              otlpKind(r.Kind),
			StartTimeUnixNano: strconv.FormatInt(r.Start.UnixNano(), 10),
			EndTimeUnixNano:   strconv.FormatInt(r.End.UnixNano(), 10),
			Attributes:        otlpAttributes(r.Attributes),
			Status:            otlpStatus{Code: otlpStatusCode(r.Status), Message: r.StatusMessage},
		})
	}
	return json.Marshal(otlpPayload{ResourceSpans: []otlpResourceSpans{{
		Resource:   otlpResource{Attributes: otlpAttributes(res.Attributes())},
		ScopeSpans: []otlpScopeSpans{{Scope: otlpScope{Name: scopeName, Version: scopeVersion}, Spans: spans}},
	}}})
}

func otlpAttributes(kvs []attribute.KeyValue) []otlpKeyValue {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]otlpKeyValue, 0, len(kvs))
	for _, kv := range kvs {
		var v otlpValue
		switch kv.Value.Type() {
		case attribute.BOOL:
			b := kv.Value.AsBool()
			v.BoolValue = &b
		case attribute.INT64:
			// int64 is a string in the JSON mapping.
			s := strconv.FormatInt(kv.Value.AsInt64(), 10)
			v.IntValue = &s
		case attribute.FLOAT64:
			f := kv.Value.AsFloat64()
			v.DoubleValue = &f
		default:
			s := kv.Value.Emit()
			v.StringValue = &s
		}
		out = append(out, otlpKeyValue{Key: string(kv.Key), Value: v})
	}
	return out
}

// otlpKind maps trace.SpanKind to the proto enum, which counts from
// SPAN_KIND_UNSPECIFIED = 0 just like the Go type.
func otlpKind(k trace.SpanKind) int { return int(k) }

// otlpStatusCode maps codes.Code to STATUS_CODE_{UNSET,OK,ERROR}.
func otlpStatusCode(c codes.Code) int {
	switch c {
	case codes.Ok:
		return 1
	case codes.Error:
		return 2
	default:
		return 0
	}
}
