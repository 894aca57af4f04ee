package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/internal/jsonrpc"
	"github.com/mcp-obs/mcp-server-go/internal/logctx"
	"github.com/mcp-obs/mcp-server-go/mcpservice"
)

// DefaultMaxMessageBytes caps a single line.
const DefaultMaxMessageBytes = 4 << 20

// Handler is a single-connection stdio transport. Messages are served one at
// a time in arrival order, so responses are written in request order.
type Handler struct {
	srv          *mcpservice.Server
	mw           *auth.Middleware
	mws          []auth.HandlerMiddleware
	userProvider UserProvider
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	maxMessage   int

	wmu sync.Mutex
}

// NewHandler constructs a stdio Handler with defaults and applies options.
// With a nil mw every message is attributed to the local OS user.
func NewHandler(srv *mcpservice.Server, mw *auth.Middleware, opts ...Option) *Handler {
	h := &Handler{
		srv:          srv,
		mw:           mw,
		userProvider: OSUserProvider{},
		r:            os.Stdin,
		w:            os.Stdout,
		maxMessage:   DefaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.Wrap(h.l)
	return h
}

func (h *Handler) chain() auth.Handler {
	var first auth.HandlerMiddleware
	if h.mw != nil {
		first = toolCallsOnly(h.mw.Wrap)
	} else {
		first = localIdentity(h.userProvider)
	}
	mws := append([]auth.HandlerMiddleware{first}, h.mws...)
	return auth.Chain(h.srv.Handler(), mws...)
}

// toolCallsOnly applies mw to tools/call and lets the handshake and listing
// methods through unauthenticated. A stdio client has no discovery step to
// recover from a rejected initialize.
func toolCallsOnly(mw auth.HandlerMiddleware) auth.HandlerMiddleware {
	return func(next auth.Handler) auth.Handler {
		guarded := mw(next)
		return func(ctx context.Context, req *auth.Request) (any, error) {
			if mcpservice.MethodFromContext(ctx) == mcpservice.MethodToolsCall {
				return guarded(ctx, req)
			}
			return next(ctx, req)
		}
	}
}

// Serve runs the event loop until EOF on the reader (returning nil) or until
// ctx is cancelled (returning ctx.Err()). It is safe to call at most once.
func (h *Handler) Serve(ctx context.Context) error {
	if h.srv == nil {
		return errors.New("stdio: server is required")
	}
	chain := h.chain()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.r)
		sc.Buffer(make([]byte, 0, 64*1024), h.maxMessage)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	h.l.InfoContext(ctx, "stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("stdio: read: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			h.handleLine(ctx, chain, line)
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, chain auth.Handler, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	msg, err := jsonrpc.ParseRequest(line)
	if err != nil {
		if errors.Is(err, jsonrpc.ErrNotRequest) {
			h.l.DebugContext(ctx, "stdio.message.ignored")
			return
		}
		h.l.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		h.write(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeFor(err), err.Error(), nil))
		return
	}
	resp := h.srv.Serve(ctx, chain, msg, auth.Request{Transport: auth.TransportStdio})
	if resp != nil {
		h.write(ctx, resp)
	}
}

func (h *Handler) write(ctx context.Context, resp *jsonrpc.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.encode.fail", slog.String("err", err.Error()))
		return
	}
	b = append(b, '\n')
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := h.w.Write(b); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}
