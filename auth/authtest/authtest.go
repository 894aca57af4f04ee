// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcp-obs/mcp-server-go/auth"
)

// StaticValidator accepts a fixed set of tokens. It is safe for concurrent
// use and counts every Validate call.
type StaticValidator struct {
	mu     sync.RWMutex
	tokens map[string]*auth.AuthContext
	calls  atomic.Int64
}

var _ auth.Validator = (*StaticValidator)(nil)

// NewStaticValidator returns an empty validator; every token is rejected
// until registered with Add.
func NewStaticValidator() *StaticValidator {
	return &StaticValidator{tokens: make(map[string]*auth.AuthContext)}
}

// Add registers token as belonging to userID with the given scopes. The
// identity expires an hour from now.
func (s *StaticValidator) Add(token, userID string, scopes ...string) *StaticValidator {
	return s.AddContext(token, &auth.AuthContext{
		UserID:    userID,
		Email:     userID + "@example.com",
		Scopes:    append([]string(nil), scopes...),
		ClientID:  "test-client",
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	})
}

// AddContext registers token with a fully specified identity.
func (s *StaticValidator) AddContext(token string, ac *auth.AuthContext) *StaticValidator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = ac
	return s
}

func (s *StaticValidator) Validate(ctx context.Context, token string) (*auth.AuthContext, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, auth.ErrInvalidToken
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ac, ok := s.tokens[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return ac, nil
}

// Calls returns how many times Validate has been invoked.
func (s *StaticValidator) Calls() int { return int(s.calls.Load()) }
