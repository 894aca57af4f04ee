package stdio

import (
	"io"
	"log/slog"

	"github.com/mcp-obs/mcp-server-go/auth"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMiddleware adds handler middleware that runs after authentication,
// e.g. telemetry.Instrument.
func WithMiddleware(mws ...auth.HandlerMiddleware) Option {
	return func(h *Handler) { h.mws = append(h.mws, mws...) }
}

// WithUserProvider overrides how the local identity is resolved when no
// auth middleware is configured.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}

// WithMaxMessageBytes caps a single line. Non-positive values are ignored.
func WithMaxMessageBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxMessage = n
		}
	}
}
