// Package auth authenticates MCP operations against an OAuth 2.1
// authorization platform using bearer tokens.
//
// A Middleware runs the same pipeline for every transport: exempt
// operations receive an anonymous identity, everything else must present a
// bearer token that a Validator accepts and that carries every required
// scope. Transports describe an inbound operation as a Request; the
// per-transport Extractor decides where the token lives (stdio metadata,
// the Authorization header, or a streamable HTTP session).
//
// # Validators
//
// NewIntrospectionValidator asks the authority's introspection endpoint
// about each token. NewJWTValidator verifies RFC 9068 access tokens locally
// using keys found through OIDC discovery.
//
// # Failures
//
// Rejections are returned as *Failure values. errors.Is matches them against
// ErrAuthRequired, ErrInvalidToken and ErrInsufficientScope. On HTTP-shaped
// transports the Failure carries an RFC 6750 Bearer challenge pointing at
// the RFC 9728 protected resource metadata document.
//
// Example:
//
//	cfg := auth.Config{
//	    ServerSlug:       "weather",
//	    AuthorityURL:     "https://acme.mcp-obs.com",
//	    RequiredScopes:   []string{"read", "write"},
//	    ExemptOperations: []string{"ping"},
//	}
//	v, err := auth.NewIntrospectionValidator(cfg)
//	if err != nil { log.Fatal(err) }
//	mw, err := auth.NewMiddleware(cfg, v)
//	if err != nil { log.Fatal(err) }
//
//	h := mw.Wrap(func(ctx context.Context, req *auth.Request) (any, error) {
//	    ac, _ := auth.FromContext(ctx)
//	    return "hello " + ac.UserID, nil
//	})
package auth
