package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// FailureKind classifies an authentication failure.
type FailureKind int

const (
	// AuthRequired means no bearer token could be extracted.
	AuthRequired FailureKind = iota + 1
	// InvalidToken means the token was rejected during validation.
	InvalidToken
	// InsufficientScope means the token is valid but misses required scopes.
	InsufficientScope
)

func (k FailureKind) String() string {
	switch k {
	case AuthRequired:
		return "auth_required"
	case InvalidToken:
		return "invalid_token"
	case InsufficientScope:
		return "insufficient_scope"
	default:
		return "unknown"
	}
}

// Failure is the typed outcome of a rejected Authenticate call. It is
// returned as an error so callers can branch with errors.Is against
// ErrAuthRequired, ErrInvalidToken and ErrInsufficientScope, or errors.As
// into *Failure for the details.
type Failure struct {
	Kind FailureKind
	// MissingScopes lists the required scopes absent from the token. Only
	// set for InsufficientScope.
	MissingScopes []string
	// Challenge is the WWW-Authenticate value to send back. Only set for
	// HTTP-shaped transports. AuthRequired carries the bare
	// Bearer resource_metadata="..." challenge; InvalidToken and
	// InsufficientScope append the RFC 6750 error and error_description
	// parameters, and InsufficientScope also scope.
	Challenge string
}

func (f *Failure) Error() string {
	switch f.Kind {
	case AuthRequired:
		return "authorization required: include a Bearer token in the Authorization header"
	case InvalidToken:
		return ErrInvalidToken.Error()
	case InsufficientScope:
		return fmt.Sprintf("insufficient scope: missing %s", strings.Join(f.MissingScopes, ", "))
	default:
		return "authentication failed"
	}
}

// Is matches the package sentinel corresponding to the failure kind.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrAuthRequired:
		return f.Kind == AuthRequired
	case ErrInvalidToken:
		return f.Kind == InvalidToken
	case ErrInsufficientScope:
		return f.Kind == InsufficientScope
	}
	return false
}

// HTTPStatus returns the status code a transport should answer with.
func (f *Failure) HTTPStatus() int {
	if f.Kind == InsufficientScope {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// BuildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer resource_metadata="<url>", error="...", error_description="...", scope="..."
//
// Empty values are omitted. With no error parameters the result is the bare
// resource_metadata challenge RFC 6750 §3.1 asks for when credentials are
// missing.
func BuildBearerChallenge(resourceMetadata string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok && v != "" {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

func challengeFor(kind FailureKind, resourceMetadata string, missing []string) string {
	switch kind {
	case InvalidToken:
		return BuildBearerChallenge(resourceMetadata, map[string]string{
			"error":             "invalid_token",
			"error_description": ErrInvalidToken.Error(),
		})
	case InsufficientScope:
		return BuildBearerChallenge(resourceMetadata, map[string]string{
			"error":             "insufficient_scope",
			"error_description": "the access token lacks required scopes",
			"scope":             strings.Join(missing, " "),
		})
	default:
		return BuildBearerChallenge(resourceMetadata, nil)
	}
}
