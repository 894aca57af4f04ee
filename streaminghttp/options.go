package streaminghttp

import (
	"log/slog"
	"net/http"

	"github.com/mcp-obs/mcp-server-go/auth"
)

// DefaultMaxBodyBytes caps a single JSON-RPC message.
const DefaultMaxBodyBytes = 4 << 20

// Option configures a Handler or an Authenticator.
type Option func(*newConfig)

type newConfig struct {
	logger     *slog.Logger
	serverName string
	middleware []auth.HandlerMiddleware
	sessions   Sessions
	transport  auth.Transport
	mirrorAS   bool
	oauthProxy bool
	httpClient *http.Client
	maxBody    int64
}

func defaultConfig() *newConfig {
	return &newConfig{
		transport: auth.TransportStreamableHTTP,
		maxBody:   DefaultMaxBodyBytes,
	}
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithServerName sets a human-readable name surfaced as resource_name in the
// discovery document.
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// WithMiddleware adds handler middleware that runs after authentication,
// e.g. telemetry.Instrument. The first middleware is the outermost.
func WithMiddleware(mws ...auth.HandlerMiddleware) Option {
	return func(c *newConfig) { c.middleware = append(c.middleware, mws...) }
}

// WithSessions enables Mcp-Session-Id handling backed by s.
func WithSessions(s Sessions) Option {
	return func(c *newConfig) { c.sessions = s }
}

// WithTransport selects the extractor used for inbound requests. The default
// is auth.TransportStreamableHTTP, which also consults session credentials;
// auth.TransportHTTP reads the Authorization header only.
func WithTransport(t auth.Transport) Option {
	return func(c *newConfig) {
		if t.IsHTTP() {
			c.transport = t
		}
	}
}

// WithAuthorizationServerMirror serves the authority's metadata at
// /.well-known/oauth-authorization-server. The document is fetched once by
// New through OIDC discovery.
func WithAuthorizationServerMirror(enabled bool) Option {
	return func(c *newConfig) { c.mirrorAS = enabled }
}

// WithOAuthProxy mounts /authorize, /token and /register, forwarding to the
// authority's /mcp-auth/oauth endpoints.
func WithOAuthProxy(enabled bool) Option {
	return func(c *newConfig) { c.oauthProxy = enabled }
}

// WithHTTPClient sets the client used for discovery and proxying.
func WithHTTPClient(client *http.Client) Option {
	return func(c *newConfig) { c.httpClient = client }
}

// WithMaxBodyBytes caps the request body size. Non-positive values are
// ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(c *newConfig) {
		if n > 0 {
			c.maxBody = n
		}
	}
}
