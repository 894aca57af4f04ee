package auth

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrAuthRequired indicates the request carried no bearer token.
var ErrAuthRequired = errors.New("authorization required")

// ErrInvalidToken indicates the bearer token was rejected by the authority.
// Inactive, malformed, expired and unverifiable tokens all map to this error
// so callers cannot tell them apart.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrInsufficientScope indicates the caller authenticated but lacks one or
// more required scopes.
var ErrInsufficientScope = errors.New("insufficient scope")

// AuthContext is the identity and claims derived from a validated token.
// Values are produced by a Validator (or AnonymousContext) and must not be
// modified afterwards.
type AuthContext struct {
	UserID   string
	Email    string
	Name     string
	Image    string
	Scopes   []string
	ClientID string
	// ExpiresAt is the token expiry in milliseconds since the Unix epoch.
	ExpiresAt int64
}

// HasScope reports whether scope was granted.
func (a *AuthContext) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// Expiry returns ExpiresAt as a time.Time.
func (a *AuthContext) Expiry() time.Time {
	return time.UnixMilli(a.ExpiresAt)
}

// IsAnonymous reports whether this is the sentinel context handed to exempt
// operations.
func (a *AuthContext) IsAnonymous() bool {
	return a.UserID == AnonymousUserID && a.ClientID == AnonymousUserID
}

const (
	AnonymousUserID = "anonymous"
	AnonymousEmail  = "anonymous@mcp-obs.com"

	anonymousValidity = time.Hour
)

// AnonymousContext returns the fixed identity used for exempt operations:
// no scopes and a short validity window starting at now.
func AnonymousContext(now time.Time) *AuthContext {
	return &AuthContext{
		UserID:    AnonymousUserID,
		Email:     AnonymousEmail,
		Scopes:    []string{},
		ClientID:  AnonymousUserID,
		ExpiresAt: now.Add(anonymousValidity).UnixMilli(),
	}
}

// Validator turns a bearer token into an AuthContext. Implementations return
// ErrInvalidToken (possibly wrapped) for every rejected token and must be
// safe for concurrent use.
type Validator interface {
	Validate(ctx context.Context, token string) (*AuthContext, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, token string) (*AuthContext, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string) (*AuthContext, error) {
	return f(ctx, token)
}

type authContextKey struct{}

// WithAuthContext returns a copy of ctx carrying ac.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// FromContext returns the AuthContext stored by the middleware, if any.
func FromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
