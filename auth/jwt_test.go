package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://acme.mcp-obs.com"
	testAudience = "https://weather.example.com/mcp"
	testKeyID    = "k1"
)

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	return pk
}

func serveJWKS(t *testing.T, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: pub, KeyID: testKeyID, Algorithm: "RS256", Use: "sig"}}}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sign(t *testing.T, pk *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	tok.Header["typ"] = "at+jwt"
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newTestJWTValidator(t *testing.T, pk *rsa.PrivateKey) Validator {
	t.Helper()
	jwks := serveJWKS(t, &pk.PublicKey)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := NewJWTValidator(ctx, testIssuer, []string{testAudience}, WithJWKSURI(jwks.URL+"/keys"))
	if err != nil {
		t.Fatalf("NewJWTValidator: %v", err)
	}
	return v
}

func TestJWTValidatorClaimMapping(t *testing.T) {
	pk := newRSAKey(t)
	v := newTestJWTValidator(t, pk)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	base := func(extra jwt.MapClaims) jwt.MapClaims {
		c := jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"aud": testAudience,
			"exp": exp.Unix(),
			"iat": time.Now().Unix(),
		}
		for k, val := range extra {
			c[k] = val
		}
		return c
	}

	tests := []struct {
		name       string
		claims     jwt.MapClaims
		wantEmail  string
		wantClient string
		wantScopes []string
	}{
		{
			name:       "scope string with email and client_id",
			claims:     base(jwt.MapClaims{"scope": "read write", "email": "a@example.com", "username": "alice", "client_id": "cli", "azp": "other"}),
			wantEmail:  "a@example.com",
			wantClient: "cli",
			wantScopes: []string{"read", "write"},
		},
		{
			name:       "scp array with username and azp",
			claims:     base(jwt.MapClaims{"scp": []string{"read", "admin"}, "username": "alice", "azp": "spa"}),
			wantEmail:  "alice",
			wantClient: "spa",
			wantScopes: []string{"read", "admin"},
		},
		{
			name:       "nothing optional",
			claims:     base(nil),
			wantEmail:  "unknown",
			wantClient: "unknown",
			wantScopes: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := v.Validate(context.Background(), sign(t, pk, tt.claims))
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if ac.UserID != "user-1" {
				t.Errorf("user = %q", ac.UserID)
			}
			if ac.Email != tt.wantEmail {
				t.Errorf("email = %q, want %q", ac.Email, tt.wantEmail)
			}
			if ac.ClientID != tt.wantClient {
				t.Errorf("client = %q, want %q", ac.ClientID, tt.wantClient)
			}
			if len(ac.Scopes) != 0 || len(tt.wantScopes) != 0 {
				if !reflect.DeepEqual(ac.Scopes, tt.wantScopes) {
					t.Errorf("scopes = %v, want %v", ac.Scopes, tt.wantScopes)
				}
			}
			if ac.ExpiresAt != exp.UnixMilli() {
				t.Errorf("expires = %d, want %d", ac.ExpiresAt, exp.UnixMilli())
			}
		})
	}
}

func TestJWTValidatorRejects(t *testing.T) {
	pk := newRSAKey(t)
	v := newTestJWTValidator(t, pk)
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"aud": testAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	wrongAud := valid()
	wrongAud["aud"] = "https://elsewhere.example.com"
	expired := valid()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	noExp := valid()
	delete(noExp, "exp")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong audience", sign(t, pk, wrongAud)},
		{"expired", sign(t, pk, expired)},
		{"missing exp", sign(t, pk, noExp)},
		{"foreign key", sign(t, newRSAKey(t), valid())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := v.Validate(context.Background(), tt.token)
			if ac != nil {
				t.Fatalf("got AuthContext %+v for rejected token", ac)
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewJWTValidatorRequiresAudience(t *testing.T) {
	if _, err := NewJWTValidator(context.Background(), testIssuer, nil); err == nil {
		t.Fatal("expected error without audiences")
	}
}
