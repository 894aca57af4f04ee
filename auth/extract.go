package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Transport identifies the shape of an inbound request.
type Transport int

const (
	TransportStdio Transport = iota + 1
	TransportHTTP
	TransportStreamableHTTP
)

func (t Transport) String() string {
	switch t {
	case TransportStdio:
		return "stdio"
	case TransportHTTP:
		return "http"
	case TransportStreamableHTTP:
		return "streamable-http"
	default:
		return "unknown"
	}
}

// IsHTTP reports whether failures on t must carry a Bearer challenge.
func (t Transport) IsHTTP() bool {
	return t == TransportHTTP || t == TransportStreamableHTTP
}

// SessionInfo carries session-scoped credentials for streamable HTTP
// connections, e.g. the Authorization presented when the stream was opened.
type SessionInfo struct {
	ID            string
	Authorization string
}

// ConnectionInfo carries the headers of the underlying long-lived
// connection.
type ConnectionInfo struct {
	Header http.Header
}

// Request is the transport-neutral view of an inbound operation that the
// middleware authenticates. Transports fill in only the fields they have.
type Request struct {
	Transport Transport
	// Operation is the tool (or method) being invoked.
	Operation string
	Arguments json.RawMessage

	// Metadata is the stdio request metadata (e.g. JSON-RPC params._meta).
	Metadata map[string]string
	// Authorization is a top-level authorization field on the request.
	Authorization string

	// Header holds HTTP request headers.
	Header http.Header

	Session    *SessionInfo
	Connection *ConnectionInfo
}

// Extractor locates a bearer token within a Request. Extract returns the
// token without its "Bearer " prefix; ok is false when no candidate location
// holds a bearer credential. Extractors never fail.
type Extractor interface {
	Extract(r *Request) (token string, ok bool)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(r *Request) (string, bool)

func (f ExtractorFunc) Extract(r *Request) (string, bool) { return f(r) }

// StdioExtractor probes the metadata "authorization" entry, then the
// metadata "auth" entry, then the request's top-level Authorization field.
type StdioExtractor struct{}

func (StdioExtractor) Extract(r *Request) (string, bool) {
	if r == nil {
		return "", false
	}
	if tok, ok := bearerToken(lookupFold(r.Metadata, "authorization")); ok {
		return tok, true
	}
	if tok, ok := bearerToken(lookupFold(r.Metadata, "auth")); ok {
		return tok, true
	}
	return bearerToken(r.Authorization)
}

// HTTPExtractor reads the Authorization header.
type HTTPExtractor struct{}

func (HTTPExtractor) Extract(r *Request) (string, bool) {
	if r == nil {
		return "", false
	}
	return bearerToken(headerValue(r.Header, "Authorization"))
}

// StreamableHTTPExtractor tries the HTTP headers first, then the session's
// authorization, then the connection headers.
type StreamableHTTPExtractor struct {
	HTTP HTTPExtractor
}

func (e StreamableHTTPExtractor) Extract(r *Request) (string, bool) {
	if tok, ok := e.HTTP.Extract(r); ok {
		return tok, true
	}
	if r == nil {
		return "", false
	}
	if r.Session != nil {
		if tok, ok := bearerToken(r.Session.Authorization); ok {
			return tok, true
		}
	}
	if r.Connection != nil {
		return bearerToken(headerValue(r.Connection.Header, "Authorization"))
	}
	return "", false
}

// DefaultExtractors maps each built-in transport to its extractor.
func DefaultExtractors() map[Transport]Extractor {
	return map[Transport]Extractor{
		TransportStdio:          StdioExtractor{},
		TransportHTTP:           HTTPExtractor{},
		TransportStreamableHTTP: StreamableHTTPExtractor{},
	}
}

const bearerScheme = "bearer"

// bearerToken strips the Bearer scheme from an authorization value. The
// scheme is matched case-insensitively (RFC 7235 §2.1).
func bearerToken(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if len(v) <= len(bearerScheme) || !strings.EqualFold(v[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	rest := v[len(bearerScheme):]
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	tok := strings.TrimSpace(rest)
	if tok == "" {
		return "", false
	}
	return tok, true
}

// headerValue looks up name in h. It falls back to a case-insensitive scan
// so maps built without canonical keys still match.
func headerValue(h http.Header, name string) string {
	if h == nil {
		return ""
	}
	if v := h.Get(name); v != "" {
		return v
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func lookupFold(m map[string]string, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
