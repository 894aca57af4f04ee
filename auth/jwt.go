package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mcp-obs/mcp-server-go/internal/jwtauth"
)

// JWTOption configures a JWT validator.
type JWTOption func(*jwtOptions)

type jwtOptions struct {
	cfg     *jwtauth.Config
	jwksURI string
	log     *slog.Logger
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) JWTOption {
	return func(o *jwtOptions) { o.cfg.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(o *jwtOptions) { o.cfg.Leeway = d }
}

// WithJWKSURI skips OIDC discovery and fetches keys from uri directly.
func WithJWKSURI(uri string) JWTOption {
	return func(o *jwtOptions) { o.jwksURI = uri }
}

// WithJWTLogger sets the logger used for rejected tokens.
func WithJWTLogger(l *slog.Logger) JWTOption {
	return func(o *jwtOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewJWTValidator returns a Validator that verifies RFC 9068 JWT access
// tokens locally instead of calling the introspection endpoint. Keys come
// from the issuer's OIDC discovery document unless WithJWKSURI is given, and
// are refreshed for the lifetime of ctx.
//
// Claims map onto the AuthContext as follows: sub (or mcp:user_id) is the
// user, email or username the email, scope or scp the scopes, and exp the
// expiry. Tokens without exp are rejected.
func NewJWTValidator(ctx context.Context, issuer string, audiences []string, opts ...JWTOption) (Validator, error) {
	o := &jwtOptions{cfg: jwtauth.DefaultConfig(), log: slog.New(slog.DiscardHandler)}
	o.cfg.Issuer = issuer
	o.cfg.ExpectedAudiences = append([]string(nil), audiences...)
	for _, opt := range opts {
		opt(o)
	}
	if len(o.cfg.ExpectedAudiences) == 0 {
		return nil, errors.New("auth: at least one audience is required")
	}

	var (
		v   jwtauth.Verifier
		err error
	)
	if o.jwksURI != "" {
		v, err = jwtauth.NewStatic(ctx, o.cfg, o.jwksURI)
	} else {
		v, err = jwtauth.NewFromDiscovery(ctx, o.cfg)
	}
	if err != nil {
		return nil, err
	}
	return &jwtValidator{v: v, log: o.log}, nil
}

type jwtValidator struct {
	v   jwtauth.Verifier
	log *slog.Logger
}

func (j *jwtValidator) Validate(ctx context.Context, token string) (*AuthContext, error) {
	claims, err := j.v.Verify(ctx, token)
	if err != nil {
		j.log.DebugContext(ctx, "auth.jwt.fail", slog.String("err", err.Error()))
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claimsContext(claims), nil
}

func claimsContext(c jwt.MapClaims) *AuthContext {
	str := func(k string) string {
		s, _ := c[k].(string)
		return s
	}
	scope := str("scope")
	if scope == "" {
		scope = scpClaim(c["scp"])
	}
	ac := &AuthContext{
		UserID:   firstNonEmpty(str("sub"), str("mcp:user_id"), "unknown"),
		Email:    firstNonEmpty(str("email"), str("username"), "unknown"),
		Name:     str("name"),
		Image:    str("picture"),
		Scopes:   ParseScopes(scope),
		ClientID: firstNonEmpty(str("client_id"), str("azp"), "unknown"),
	}
	if exp, err := c.GetExpirationTime(); err == nil && exp != nil {
		ac.ExpiresAt = exp.UnixMilli()
	}
	return ac
}

// scpClaim flattens the array form of the scope claim some issuers emit.
func scpClaim(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		out := ""
		for _, e := range s {
			if str, ok := e.(string); ok {
				if out != "" {
					out += " "
				}
				out += str
			}
		}
		return out
	}
	return ""
}
