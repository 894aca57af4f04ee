package streaminghttp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcp-obs/mcp-server-go/auth"
)

// Sessions tracks streamable HTTP sessions and the credential each was
// opened with. Implementations must be safe for concurrent use.
type Sessions interface {
	// Open starts a session and returns its id.
	Open(ctx context.Context, authorization string) (string, error)
	// Lookup returns the session for id.
	Lookup(ctx context.Context, id string) (*auth.SessionInfo, bool)
	// Close forgets the session. Closing an unknown id is not an error.
	Close(ctx context.Context, id string) error
}

// MemorySessions is a process-local Sessions.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]string
}

var _ Sessions = (*MemorySessions)(nil)

// NewMemorySessions returns an empty MemorySessions.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]string)}
}

func (m *MemorySessions) Open(ctx context.Context, authorization string) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = authorization
	m.mu.Unlock()
	return id, nil
}

func (m *MemorySessions) Lookup(ctx context.Context, id string) (*auth.SessionInfo, bool) {
	m.mu.RLock()
	authz, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &auth.SessionInfo{ID: id, Authorization: authz}, true
}

func (m *MemorySessions) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}
