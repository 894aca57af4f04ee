package auth

import (
	"errors"
	"net/http"
	"testing"
)

func TestBuildBearerChallenge(t *testing.T) {
	const prm = "https://acme.mcp-obs.com/.well-known/oauth-protected-resource"
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{"bare", nil, `Bearer resource_metadata="` + prm + `"`},
		{
			"ordered params",
			map[string]string{"scope": "write", "error": "insufficient_scope"},
			`Bearer resource_metadata="` + prm + `", error="insufficient_scope", scope="write"`,
		},
		{
			"escaped",
			map[string]string{"error_description": `say "hi"`},
			`Bearer resource_metadata="` + prm + `", error_description="say \"hi\""`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildBearerChallenge(prm, tt.params); got != tt.want {
				t.Fatalf("got %s\nwant %s", got, tt.want)
			}
		})
	}
	if got := BuildBearerChallenge("", nil); got != "Bearer" {
		t.Fatalf("empty challenge = %q", got)
	}
}

func TestFailure(t *testing.T) {
	tests := []struct {
		kind     FailureKind
		sentinel error
		status   int
	}{
		{AuthRequired, ErrAuthRequired, http.StatusUnauthorized},
		{InvalidToken, ErrInvalidToken, http.StatusUnauthorized},
		{InsufficientScope, ErrInsufficientScope, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var err error = &Failure{Kind: tt.kind, MissingScopes: []string{"write"}}
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
			var f *Failure
			if !errors.As(err, &f) || f.HTTPStatus() != tt.status {
				t.Fatalf("status mismatch")
			}
		})
	}
	if errors.Is(&Failure{Kind: AuthRequired}, ErrInvalidToken) {
		t.Fatalf("auth required must not match invalid token")
	}
}

func TestChallengeForKinds(t *testing.T) {
	const prm = "https://acme.mcp-obs.com/.well-known/oauth-protected-resource"
	tests := []struct {
		kind FailureKind
		want string
	}{
		{AuthRequired, `Bearer resource_metadata="` + prm + `"`},
		{InvalidToken, `Bearer resource_metadata="` + prm + `", error="invalid_token", error_description="` + ErrInvalidToken.Error() + `"`},
		{InsufficientScope, `Bearer resource_metadata="` + prm + `", error="insufficient_scope", error_description="the access token lacks required scopes", scope="read write"`},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := challengeFor(tt.kind, prm, []string{"read", "write"}); got != tt.want {
				t.Fatalf("challenge = %q\nwant        %q", got, tt.want)
			}
		})
	}
}
