package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/internal/jsonrpc"
	"github.com/mcp-obs/mcp-server-go/internal/logctx"
)

// JSON-RPC methods served by Server.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	tools        []Tool
	instructions string
	log          *slog.Logger
}

// WithTools registers tools. Names must be unique.
func WithTools(tools ...Tool) ServerOption {
	return func(c *serverConfig) { c.tools = append(c.tools, tools...) }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(s string) ServerOption {
	return func(c *serverConfig) { c.instructions = s }
}

// WithLogger sets the logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.log = l }
}

// Server holds an immutable tool set. It is safe for concurrent use.
type Server struct {
	info         ServerInfo
	instructions string
	tools        map[string]Tool
	descriptors  []ToolDescriptor
	log          *slog.Logger
}

// NewServer builds a Server. It fails on unnamed or duplicate tools.
func NewServer(info ServerInfo, opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		info:         info,
		instructions: cfg.instructions,
		tools:        make(map[string]Tool, len(cfg.tools)),
		log:          logctx.Wrap(cfg.log),
	}
	for _, t := range cfg.tools {
		name := t.Descriptor.Name
		if name == "" || t.Handler == nil {
			return nil, errors.New("mcpservice: tool requires a name and a handler")
		}
		if _, dup := s.tools[name]; dup {
			return nil, fmt.Errorf("mcpservice: duplicate tool %q", name)
		}
		s.tools[name] = t
		s.descriptors = append(s.descriptors, t.Descriptor)
	}
	return s, nil
}

// Tools returns the registered tool descriptors in registration order.
func (s *Server) Tools() []ToolDescriptor {
	return append([]ToolDescriptor(nil), s.descriptors...)
}

type methodKey struct{}

// MethodFromContext returns the JSON-RPC method being served.
func MethodFromContext(ctx context.Context) string {
	m, _ := ctx.Value(methodKey{}).(string)
	return m
}

// Handler returns the innermost handler of a transport's chain. It answers
// the method recorded in the context by Serve.
func (s *Server) Handler() auth.Handler {
	return func(ctx context.Context, req *auth.Request) (any, error) {
		switch MethodFromContext(ctx) {
		case MethodInitialize:
			res := initializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      s.info,
				Instructions:    s.instructions,
			}
			return res, nil
		case MethodPing:
			return struct{}{}, nil
		case MethodToolsList:
			return listToolsResult{Tools: s.Tools()}, nil
		case MethodToolsCall:
			t, ok := s.tools[req.Operation]
			if !ok {
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool: %s", req.Operation), nil)
			}
			return t.Handler(ctx, req.Arguments)
		default:
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", MethodFromContext(ctx)), nil)
		}
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Meta      map[string]any  `json:"_meta,omitempty"`
}

// NewRequest derives the auth.Request for msg. base supplies the transport
// and whatever transport-level credentials it has; the operation, arguments
// and stdio metadata come from the message. For tools/call the operation is
// the tool name, otherwise it is the method.
func NewRequest(msg *jsonrpc.Request, base auth.Request) (*auth.Request, error) {
	req := base
	req.Operation = msg.Method
	if req.Authorization == "" {
		req.Authorization = msg.Authorization
	}

	var p callParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
		}
	}
	if msg.Method == MethodToolsCall {
		if p.Name == "" {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "invalid params: missing tool name", nil)
		}
		req.Operation = p.Name
		req.Arguments = p.Arguments
	}
	if len(p.Meta) > 0 {
		md := make(map[string]string, len(p.Meta)+len(base.Metadata))
		for k, v := range base.Metadata {
			md[k] = v
		}
		for k, v := range p.Meta {
			if s, ok := v.(string); ok {
				md[k] = s
			}
		}
		req.Metadata = md
	}
	return &req, nil
}

// Serve runs msg through h and returns the response to write. Notifications
// are acknowledged without running the chain and yield nil.
func (s *Server) Serve(ctx context.Context, h auth.Handler, msg *jsonrpc.Request, base auth.Request) *jsonrpc.Response {
	if msg.IsNotification() {
		s.log.DebugContext(ctx, "rpc.notification", slog.String("method", msg.Method))
		return nil
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: "request"})

	req, err := NewRequest(msg, base)
	if err != nil {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: ErrorFor(err), ID: msg.ID}
	}
	ctx = context.WithValue(ctx, methodKey{}, msg.Method)
	if msg.Method == MethodToolsCall {
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: req.Operation})
	}

	out, err := h(ctx, req)
	if err != nil {
		s.log.InfoContext(ctx, "rpc.request.fail", slog.String("err", err.Error()))
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: ErrorFor(err), ID: msg.ID}
	}
	resp, err := jsonrpc.NewResultResponse(msg.ID, out)
	if err != nil {
		s.log.ErrorContext(ctx, "rpc.response.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return resp
}

// ErrorFor maps a handler error to a JSON-RPC error object. Authentication
// failures on message-framed transports map AuthRequired and InvalidToken to
// invalid params and InsufficientScope to internal error carrying the
// missing scopes.
func ErrorFor(err error) *jsonrpc.Error {
	var je *jsonrpc.Error
	if errors.As(err, &je) {
		return je
	}
	var f *auth.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case auth.InsufficientScope:
			return jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, f.Error(), map[string]any{
				"missing_scopes": append([]string{}, f.MissingScopes...),
			})
		default:
			return jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, f.Error(), nil)
		}
	}
	return jsonrpc.NewError(jsonrpc.ErrorCodeInternalError, err.Error(), nil)
}
