package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/internal/jsonrpc"
	"github.com/mcp-obs/mcp-server-go/internal/logctx"
	"github.com/mcp-obs/mcp-server-go/internal/wellknown"
	"github.com/mcp-obs/mcp-server-go/mcpservice"
)

var _ http.Handler = (*Handler)(nil)

// Handler serves an MCP endpoint over HTTP together with its discovery and
// OAuth helper routes.
type Handler struct {
	log      *slog.Logger
	authn    *Authenticator
	srv      *mcpservice.Server
	chain    auth.Handler
	sessions Sessions
	maxBody  int64

	prmDocument        wellknown.ProtectedResourceMetadata
	authServerMetadata *wellknown.AuthServerMetadata

	mux *http.ServeMux
}

// New builds a Handler for the MCP endpoint at publicEndpoint. With
// WithAuthorizationServerMirror it performs discovery against the authority
// and fails if that does.
func New(ctx context.Context, publicEndpoint string, srv *mcpservice.Server, mw *auth.Middleware, opts ...Option) (*Handler, error) {
	if srv == nil {
		return nil, errors.New("server is required")
	}
	if mw == nil {
		return nil, errors.New("auth middleware is required")
	}

	mcpURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", publicEndpoint, err)
	}
	if mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("server URL must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	acfg := mw.Config()
	h := &Handler{
		log:      logctx.Wrap(cfg.logger),
		authn:    newAuthenticator(mw, cfg),
		srv:      srv,
		chain:    auth.Chain(srv.Handler(), cfg.middleware...),
		sessions: cfg.sessions,
		maxBody:  cfg.maxBody,
	}
	h.prmDocument = acfg.ProtectedResourceMetadata(mcpURL.String())
	h.prmDocument.ResourceName = cfg.serverName

	if cfg.mirrorAS {
		md, err := fetchAuthorityMetadata(ctx, acfg.AuthorityURL, cfg.httpClient)
		if err != nil {
			return nil, err
		}
		h.authServerMetadata = md
	}

	mcpPath := pathOnly(mcpURL)
	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("POST %s", mcpPath), h.authn.Wrap(http.HandlerFunc(h.handlePostMCP)))
	mux.Handle(fmt.Sprintf("DELETE %s", mcpPath), h.authn.Wrap(http.HandlerFunc(h.handleDeleteMCP)))
	mux.HandleFunc(fmt.Sprintf("GET %s", mcpPath), h.handleGetMCP)

	prmPaths := []string{auth.ProtectedResourceMetadataPath}
	if mcpPath != "/" {
		prmPaths = append(prmPaths, auth.ProtectedResourceMetadataPath+strings.TrimSuffix(mcpPath, "/"))
	}
	for _, p := range prmPaths {
		mux.HandleFunc(fmt.Sprintf("GET %s", p), h.handleGetProtectedResourceMetadata)
		mux.HandleFunc(fmt.Sprintf("OPTIONS %s", p), handleOptionsMetadata)
	}

	if h.authServerMetadata != nil {
		mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.handleGetAuthorizationServerMetadata)
		mux.HandleFunc("OPTIONS /.well-known/oauth-authorization-server", handleOptionsMetadata)
	}

	if cfg.oauthProxy {
		p, err := newOAuthProxy(acfg.AuthorityURL, cfg.httpClient, h.log)
		if err != nil {
			return nil, err
		}
		mux.HandleFunc("GET /authorize", p.handleAuthorize)
		mux.Handle("POST /token", p)
		mux.Handle("POST /register", p)
	}

	h.mux = mux
	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handlePostMCP serves one JSON-RPC message. Authentication has already run.
func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}
	accepted, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes)
	if err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json or text/event-stream")
		h.log.WarnContext(ctx, "accept.unsupported")
		return
	}

	body, err := peekBody(r, h.maxBody)
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	msg, err := jsonrpc.ParseRequest(body)
	if err != nil {
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		h.writeResponse(ctx, w, http.StatusBadRequest, jsonMediaType, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeFor(err), err.Error(), nil))
		return
	}

	base, _ := h.authn.baseRequest(r)
	resp := h.srv.Serve(ctx, h.chain, msg, base)

	if msg.Method == mcpservice.MethodInitialize && h.sessions != nil && base.Session == nil && resp != nil && resp.Error == nil {
		id, err := h.sessions.Open(ctx, r.Header.Get(authorizationHeader))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to open session")
			h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
			return
		}
		w.Header().Set(mcpSessionIDHeader, id)
		w.Header().Set(mcpProtocolVersionHeader, mcpservice.ProtocolVersion)
	}

	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "http.post.end", slog.Duration("dur", time.Since(start)))
		return
	}
	h.writeResponse(ctx, w, http.StatusOK, accepted, resp)
	h.log.InfoContext(ctx, "http.post.end", slog.Duration("dur", time.Since(start)))
}

// writeResponse writes resp as plain JSON or as a single server-sent event.
func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, status int, mt contenttype.MediaType, resp *jsonrpc.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		h.log.ErrorContext(ctx, "response.encode.fail", slog.String("err", err.Error()))
		return
	}
	if mt.Matches(eventStreamMediaType) {
		w.Header().Set("Content-Type", eventStreamMediaType.String())
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(status)
		_, err = fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
	} else {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(status)
		_, err = w.Write(payload)
	}
	if err != nil {
		h.log.WarnContext(ctx, "response.write.fail", slog.String("err", err.Error()))
	}
}

// handleDeleteMCP terminates a session. Authentication has already run.
func (h *Handler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "sessions are not enabled")
		return
	}
	id := r.Header.Get(mcpSessionIDHeader)
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, ErrSessionHeaderMissing.Error())
		return
	}
	if err := h.sessions.Close(ctx, id); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to close session")
		h.log.ErrorContext(ctx, "session.close.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "session.close.ok")
	w.WriteHeader(http.StatusNoContent)
}

// handleGetMCP rejects server-initiated streams, which this server does not
// offer.
func (h *Handler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	allow := "POST"
	if h.sessions != nil {
		allow = "POST, DELETE"
	}
	w.Header().Set("Allow", allow)
	writeJSONError(w, http.StatusMethodNotAllowed, "server-sent event streams are not supported")
}

func handleOptionsMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProtectedResourceMetadata serves the RFC 9728 document.
func (h *Handler) handleGetProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeMetadata(w, h.prmDocument)
}

// handleGetAuthorizationServerMetadata serves the mirrored RFC 8414
// document. It does not make this process an authorization server.
func (h *Handler) handleGetAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	writeMetadata(w, h.authServerMetadata)
}

func writeMetadata(w http.ResponseWriter, doc any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", jsonMediaType.String())
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode metadata: %v", err), http.StatusInternalServerError)
	}
}
