// Package streaminghttp binds the auth middleware and an mcpservice.Server to
// net/http. It serves the MCP endpoint, the protected resource metadata
// document clients fetch after a 401, an optional mirror of the authority's
// metadata, and the OAuth proxy endpoints.
//
// Construction
//
//	h, err := streaminghttp.New(ctx,
//	    "https://weather.example.com/mcp", // public endpoint
//	    srv,                                // *mcpservice.Server
//	    mw,                                 // *auth.Middleware
//	    streaminghttp.WithMiddleware(telemetry.Instrument(batcher, icfg)),
//	    streaminghttp.WithOAuthProxy(true),
//	)
//
// Authentication failures are answered before the body reaches the server:
// 401 (missing or invalid token) or 403 (insufficient scope) with a Bearer
// challenge pointing at the discovery document, and a JSON-RPC shaped body:
//
//	{"jsonrpc":"2.0","error":{"code":-32000,"message":"Unauthorized: ..."},"id":null}
//
// Protected Resource Metadata is served at
// /.well-known/oauth-protected-resource and, for endpoints with a path, at
// /.well-known/oauth-protected-resource<path> (RFC 9728 §3.1). Both accept
// cross-origin GET and OPTIONS.
//
// Sessions
//
// With WithSessions the handler issues an Mcp-Session-Id on initialize and
// remembers the Authorization presented then. Later requests on the same
// session may omit the header; the streamable HTTP extractor falls back to
// the session's credential. DELETE on the endpoint closes the session.
//
// Authenticator exposes the same authentication step as plain net/http
// middleware for servers that bring their own MCP handler.
package streaminghttp
