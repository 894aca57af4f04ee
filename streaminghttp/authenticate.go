package streaminghttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/internal/jsonrpc"
	"github.com/mcp-obs/mcp-server-go/internal/logctx"
	"github.com/mcp-obs/mcp-server-go/mcpservice"
)

var (
	ErrSessionHeaderMissing = errors.New("missing mcp-session-id header")
	ErrInvalidSession       = errors.New("invalid mcp session")
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	responseMediaTypes   = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"
)

// Authenticator is net/http middleware running the auth middleware in front
// of an MCP endpoint. It peeks at the JSON-RPC body to learn the operation
// (the tool name for tools/call, otherwise the method) so exempt operations
// pass without a token, then restores the body for the next handler.
type Authenticator struct {
	mw        *auth.Middleware
	log       *slog.Logger
	sessions  Sessions
	transport auth.Transport
	maxBody   int64
}

// NewAuthenticator returns an Authenticator for mw. Only the logger,
// sessions, transport and body limit options apply.
func NewAuthenticator(mw *auth.Middleware, opts ...Option) (*Authenticator, error) {
	if mw == nil {
		return nil, errors.New("streaminghttp: auth middleware required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newAuthenticator(mw, cfg), nil
}

func newAuthenticator(mw *auth.Middleware, cfg *newConfig) *Authenticator {
	return &Authenticator{
		mw:        mw,
		log:       logctx.Wrap(cfg.logger),
		sessions:  cfg.sessions,
		transport: cfg.transport,
		maxBody:   cfg.maxBody,
	}
}

// Wrap authenticates each request before calling next. On success the
// AuthContext is available through auth.FromContext.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := peekBody(r, a.maxBody)
		if err != nil {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			a.log.WarnContext(ctx, "http.body.too_large")
			return
		}

		base, ok := a.baseRequest(r)
		if !ok {
			writeJSONError(w, http.StatusNotFound, ErrInvalidSession.Error())
			a.log.InfoContext(ctx, "session.lookup.fail")
			return
		}
		req := &base
		if msg, err := jsonrpc.ParseRequest(body); err == nil {
			if derived, err := mcpservice.NewRequest(msg, base); err == nil {
				req = derived
			}
		}

		ac, err := a.mw.Authenticate(ctx, req)
		if err != nil {
			var f *auth.Failure
			if !errors.As(err, &f) {
				writeJSONError(w, http.StatusInternalServerError, "authentication error")
				a.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
				return
			}
			writeFailure(w, f)
			return
		}

		ctx = auth.WithAuthContext(ctx, ac)
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{UserID: ac.UserID, ClientID: ac.ClientID, Transport: req.Transport.String()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// baseRequest builds the transport view of r without the message-derived
// fields. ok is false when r names a session that does not exist.
func (a *Authenticator) baseRequest(r *http.Request) (auth.Request, bool) {
	req := auth.Request{Transport: a.transport, Header: r.Header}
	if id := r.Header.Get(mcpSessionIDHeader); id != "" && a.sessions != nil {
		sess, ok := a.sessions.Lookup(r.Context(), id)
		if !ok {
			return req, false
		}
		req.Session = sess
	}
	return req, true
}

// peekBody reads r.Body, capped at limit, and replaces it with a fresh reader
// over the same bytes.
func peekBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errors.New("body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// failureMessage is the human-readable part of the JSON-RPC error body.
func failureMessage(f *auth.Failure) string {
	switch f.Kind {
	case auth.AuthRequired:
		return "Authentication required"
	case auth.InvalidToken:
		return "Invalid or expired token"
	default:
		return f.Error()
	}
}

// writeFailure answers a rejected request: 401 or 403, the Bearer challenge,
// and a JSON-RPC error body with a null id.
func writeFailure(w http.ResponseWriter, f *auth.Failure) {
	if f.Challenge != "" {
		w.Header().Set(wwwAuthenticateHeader, f.Challenge)
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(f.HTTPStatus())
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeUnauthorized, "Unauthorized: "+failureMessage(f), nil))
}

// writeJSONError emits a minimal JSON body for transport-level rejections.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
