package telemetry

import (
	"context"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// RedisConfig for the Redis stream sink. Defaults can be loaded via
// envdecode.
type RedisConfig struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// StreamPrefix is prepended to the server slug. ENV: MCP_OBS_TELEMETRY_STREAM_PREFIX
	StreamPrefix string `env:"MCP_OBS_TELEMETRY_STREAM_PREFIX,default=mcp-obs:telemetry:"`
	// MaxLen caps the stream length (approximate trimming); 0 disables.
	// ENV: MCP_OBS_TELEMETRY_STREAM_MAXLEN
	MaxLen int64 `env:"MCP_OBS_TELEMETRY_STREAM_MAXLEN,default=10000"`
}

// RedisSink appends each batch as one entry on a Redis stream. The entry's
// "d" field holds the OTLP/JSON payload and "n" the record count.
type RedisSink struct {
	client   *redis.Client
	owned    bool
	stream   string
	maxLen   int64
	resource Resource
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink connects to cfg.Addr and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig, res Resource) (*RedisSink, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := NewRedisSinkFromClient(cl, cfg, res)
	s.owned = true
	return s, nil
}

// NewRedisSinkFromEnv builds a sink using envdecode to populate RedisConfig.
func NewRedisSinkFromEnv(ctx context.Context, res Resource) (*RedisSink, error) {
	var cfg RedisConfig
	// Defaults come from struct tags; a missing environment is fine.
	_ = envdecode.Decode(&cfg)
	return NewRedisSink(ctx, cfg, res)
}

// NewRedisSinkFromClient uses an existing client. The caller keeps ownership
// of cl.
func NewRedisSinkFromClient(cl *redis.Client, cfg RedisConfig, res Resource) *RedisSink {
	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "mcp-obs:telemetry:"
	}
	return &RedisSink{
		client:   cl,
		stream:   prefix + res.ServerSlug,
		maxLen:   cfg.MaxLen,
		resource: res,
	}
}

// Stream returns the stream key batches are appended to.
func (s *RedisSink) Stream() string { return s.stream }

func (s *RedisSink) Export(ctx context.Context, recs []Record) error {
	data, err := EncodeOTLP(s.resource, recs)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"d": data, "n": len(recs)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Shutdown closes the client if the sink created it.
func (s *RedisSink) Shutdown(context.Context) error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
