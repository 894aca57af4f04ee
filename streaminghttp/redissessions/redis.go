// Package redissessions stores streamable HTTP sessions in Redis so that
// several server replicas can share them.
package redissessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/streaminghttp"
)

// Config for Redis-backed Sessions. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379".
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys.
	KeyPrefix string `env:"MCP_OBS_SESSIONS_KEY_PREFIX,default=mcp-obs:sessions:"`
	// TTL is how long an idle session survives. Each Lookup extends it.
	TTL time.Duration `env:"MCP_OBS_SESSIONS_TTL,default=24h"`
}

// Sessions implements streaminghttp.Sessions on Redis string keys.
type Sessions struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ streaminghttp.Sessions = (*Sessions)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Sessions, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewFromClient(cl, cfg), nil
}

// NewFromEnv builds Sessions using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Sessions, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(ctx, cfg)
}

// NewFromClient wraps an existing client. Shutdown closes cl.
func NewFromClient(cl *redis.Client, cfg Config) *Sessions {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp-obs:sessions:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{client: cl, keyPrefix: prefix, ttl: ttl}
}

// Shutdown closes the Redis client.
func (s *Sessions) Shutdown() error { return s.client.Close() }

func (s *Sessions) key(id string) string { return s.keyPrefix + "session:" + id }

func (s *Sessions) Open(ctx context.Context, authorization string) (string, error) {
	id := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.key(id), authorization, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("session id collision: %s", id)
	}
	return id, nil
}

func (s *Sessions) Lookup(ctx context.Context, id string) (*auth.SessionInfo, bool) {
	if id == "" {
		return nil, false
	}
	authz, err := s.client.GetEx(ctx, s.key(id), s.ttl).Result()
	if err != nil {
		return nil, false
	}
	return &auth.SessionInfo{ID: id, Authorization: authz}, true
}

func (s *Sessions) Close(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
