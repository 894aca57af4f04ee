package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

type authority struct {
	srv   *httptest.Server
	calls atomic.Int64
}

func newAuthority(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) *authority {
	t.Helper()
	a := &authority{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *authority) config() Config {
	return Config{ServerSlug: "weather", AuthorityURL: a.srv.URL}
}

func replyJSON(v any) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func TestIntrospection_Active(t *testing.T) {
	var gotForm map[string]string
	a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/introspect" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %q", ct)
		}
		_ = r.ParseForm()
		gotForm = map[string]string{"token": r.PostForm.Get("token"), "server_slug": r.PostForm.Get("server_slug")}
		replyJSON(map[string]any{
			"active":    true,
			"sub":       "u1",
			"username":  "a@b.c",
			"name":      "Ada",
			"scope":     "read,write",
			"client_id": "c1",
			"exp":       1700000000,
			"aud":       []string{"weather"},
		})(w, r)
	})

	v, err := NewIntrospectionValidator(a.config())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ac, err := v.Validate(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotForm["token"] != "tok-1" || gotForm["server_slug"] != "weather" {
		t.Fatalf("form = %v", gotForm)
	}
	if ac.UserID != "u1" || ac.Email != "a@b.c" || ac.Name != "Ada" || ac.ClientID != "c1" {
		t.Fatalf("identity mismatch: %+v", ac)
	}
	if !slices.Equal(ac.Scopes, []string{"read", "write"}) {
		t.Fatalf("scopes = %q", ac.Scopes)
	}
	if ac.ExpiresAt != 1700000000000 {
		t.Fatalf("expires = %d", ac.ExpiresAt)
	}
}

func TestIntrospection_Fallbacks(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newAuthority(t, replyJSON(map[string]any{
		"active":      true,
		"mcp:user_id": "u2",
		"scope":       "read write",
		"aud":         "weather",
	}))
	v, err := NewIntrospectionValidator(a.config(), WithIntrospectionClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ac, err := v.Validate(context.Background(), "tok")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ac.UserID != "u2" || ac.Email != "unknown" || ac.ClientID != "unknown" {
		t.Fatalf("fallbacks not applied: %+v", ac)
	}
	if want := now.Add(time.Hour).UnixMilli(); ac.ExpiresAt != want {
		t.Fatalf("expires = %d, want %d", ac.ExpiresAt, want)
	}
	if !slices.Equal(ac.Scopes, []string{"read", "write"}) {
		t.Fatalf("scopes = %q", ac.Scopes)
	}
}

func TestIntrospection_OutOfRangeExp(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, exp := range []float64{1e19, 9.3e15} {
		a := newAuthority(t, replyJSON(map[string]any{"active": true, "sub": "u1", "exp": exp}))
		v, err := NewIntrospectionValidator(a.config(), WithIntrospectionClock(func() time.Time { return now }))
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		ac, err := v.Validate(context.Background(), "tok")
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if want := now.Add(time.Hour).UnixMilli(); ac.ExpiresAt != want {
			t.Fatalf("exp %g: expires = %d, want fallback %d", exp, ac.ExpiresAt, want)
		}
	}
}

func TestIntrospection_Rejections(t *testing.T) {
	tests := []struct {
		name string
		h    func(http.ResponseWriter, *http.Request)
	}{
		{"inactive", replyJSON(map[string]any{"active": false})},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuthority(t, tt.h)
			v, err := NewIntrospectionValidator(a.config())
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			ac, err := v.Validate(context.Background(), "tok")
			if !errors.Is(err, ErrInvalidToken) || ac != nil {
				t.Fatalf("want ErrInvalidToken, got %v, %v", ac, err)
			}
			if a.calls.Load() != 1 {
				t.Fatalf("want exactly one request, got %d", a.calls.Load())
			}
		})
	}
}

func TestIntrospection_Timeout(t *testing.T) {
	release := make(chan struct{})
	a := newAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	cfg := a.config()
	cfg.IntrospectionTimeout = 50 * time.Millisecond
	v, err := NewIntrospectionValidator(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	start := time.Now()
	if _, err := v.Validate(context.Background(), "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestIntrospection_Unreachable(t *testing.T) {
	v, err := NewIntrospectionValidator(Config{ServerSlug: "weather", AuthorityURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := v.Validate(context.Background(), "tok"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestNewIntrospectionValidator_InvalidConfig(t *testing.T) {
	if _, err := NewIntrospectionValidator(Config{}); err == nil {
		t.Fatalf("expected config error")
	}
}
