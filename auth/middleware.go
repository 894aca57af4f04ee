package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Handler serves one authenticated operation.
type Handler func(ctx context.Context, req *Request) (any, error)

// HandlerMiddleware decorates a Handler.
type HandlerMiddleware func(next Handler) Handler

// Chain wraps h with mws; the first middleware is the outermost.
func Chain(h Handler, mws ...HandlerMiddleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithLogger sets the logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.log = l
		}
	}
}

// WithExtractor registers (or replaces) the extractor used for transport t.
func WithExtractor(t Transport, e Extractor) Option {
	return func(m *Middleware) {
		if e != nil {
			m.extractors[t] = e
		}
	}
}

// WithClock overrides the time source used for anonymous contexts.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRegisterer records authentication outcomes on reg as
// mcp_obs_auth_outcomes_total{outcome}.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Middleware) {
		if reg == nil {
			return
		}
		m.outcomes = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_obs_auth_outcomes_total",
			Help: "Authentication decisions by outcome (ok, exempt, auth_required, invalid_token, insufficient_scope).",
		}, []string{"outcome"})
	}
}

// Middleware authenticates requests: exempt check, token extraction,
// validation and scope enforcement. It holds no mutable state and is safe
// for concurrent use.
type Middleware struct {
	cfg        Config
	validator  Validator
	extractors map[Transport]Extractor
	log        *slog.Logger
	now        func() time.Time
	outcomes   *prometheus.CounterVec
}

// NewMiddleware validates cfg and returns a Middleware that uses v for token
// validation. Configuration errors are returned here so they abort startup.
func NewMiddleware(cfg Config, v Validator, opts ...Option) (*Middleware, error) {
	cc := cfg.Copy()
	cc.normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.New("auth: validator required")
	}
	m := &Middleware{
		cfg:        cc,
		validator:  v,
		extractors: DefaultExtractors(),
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns a copy of the middleware configuration.
func (m *Middleware) Config() Config { return m.cfg.Copy() }

// Authenticate resolves the identity for r. On rejection the error is a
// *Failure; on HTTP-shaped transports it carries the Bearer challenge.
func (m *Middleware) Authenticate(ctx context.Context, r *Request) (*AuthContext, error) {
	if r == nil {
		r = &Request{}
	}

	if m.cfg.IsExempt(r.Operation) {
		m.observe("exempt")
		if m.cfg.Debug {
			m.log.DebugContext(ctx, "auth.check.exempt", slog.String("operation", r.Operation))
		}
		return AnonymousContext(m.now()), nil
	}

	var (
		tok string
		ok  bool
	)
	if ex := m.extractors[r.Transport]; ex != nil {
		tok, ok = ex.Extract(r)
	}
	if !ok {
		return nil, m.fail(ctx, r, AuthRequired, nil)
	}

	ac, err := m.validator.Validate(ctx, tok)
	if err != nil || ac == nil {
		return nil, m.fail(ctx, r, InvalidToken, nil)
	}

	if missing := MissingScopes(ac.Scopes, m.cfg.RequiredScopes); len(missing) > 0 {
		return nil, m.fail(ctx, r, InsufficientScope, missing)
	}

	m.observe("ok")
	if m.cfg.Debug {
		m.log.DebugContext(ctx, "auth.check.ok",
			slog.String("operation", r.Operation),
			slog.String("transport", r.Transport.String()),
			slog.String("user_id", ac.UserID),
		)
	}
	return ac, nil
}

func (m *Middleware) fail(ctx context.Context, r *Request, kind FailureKind, missing []string) *Failure {
	f := &Failure{Kind: kind, MissingScopes: missing}
	if r.Transport.IsHTTP() {
		f.Challenge = challengeFor(kind, m.cfg.ResourceMetadataURL(), missing)
	}
	m.observe(kind.String())
	m.log.InfoContext(ctx, "auth.check.fail",
		slog.String("kind", kind.String()),
		slog.String("operation", r.Operation),
		slog.String("transport", r.Transport.String()),
	)
	return f
}

func (m *Middleware) observe(outcome string) {
	if m.outcomes != nil {
		m.outcomes.WithLabelValues(outcome).Inc()
	}
}

// Wrap returns a Handler that authenticates each request and passes the
// resulting AuthContext to next through the context.
func (m *Middleware) Wrap(next Handler) Handler {
	return func(ctx context.Context, req *Request) (any, error) {
		ac, err := m.Authenticate(ctx, req)
		if err != nil {
			return nil, err
		}
		return next(WithAuthContext(ctx, ac), req)
	}
}
