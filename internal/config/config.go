// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/streaminghttp/redissessions"
	"github.com/mcp-obs/mcp-server-go/telemetry"
)

// Token validator kinds.
const (
	ValidatorIntrospection = "introspection"
	ValidatorJWT           = "jwt"
)

// Session store kinds for the streamable HTTP transport.
const (
	SessionsMemory = "memory"
	SessionsRedis  = "redis"
	SessionsNone   = "none"
)

// Telemetry sink kinds.
const (
	SinkHTTP  = "http"
	SinkRedis = "redis"
	SinkNone  = "none"
)

// Config is everything the server reads from its environment. List values
// (exempt and skipped operations, audiences) are separated by semicolons;
// scopes accept commas or spaces.
type Config struct {
	ServerSlug           string        `env:"MCP_OBS_SERVER_SLUG"`
	AuthorityURL         string        `env:"MCP_OBS_AUTHORITY_URL"`
	RequiredScopes       string        `env:"MCP_OBS_REQUIRED_SCOPES"`
	ExemptOperations     []string      `env:"MCP_OBS_EXEMPT_OPERATIONS"`
	IntrospectionTimeout time.Duration `env:"MCP_OBS_INTROSPECTION_TIMEOUT,default=10s"`
	ResourceURL          string        `env:"MCP_OBS_RESOURCE_URL"`
	Debug                bool          `env:"MCP_OBS_DEBUG,default=false"`

	// Validator selects how bearer tokens are checked.
	Validator   string   `env:"MCP_OBS_TOKEN_VALIDATOR,default=introspection"`
	JWTAudience []string `env:"MCP_OBS_JWT_AUDIENCE"`
	JWKSURI     string   `env:"MCP_OBS_JWKS_URI"`

	ListenAddr              string `env:"MCP_OBS_LISTEN_ADDR,default=:3005"`
	PublicURL               string `env:"MCP_OBS_PUBLIC_URL,default=http://localhost:3005/mcp"`
	OAuthProxy              bool   `env:"MCP_OBS_OAUTH_PROXY,default=true"`
	MirrorAuthorityMetadata bool   `env:"MCP_OBS_MIRROR_AUTHORITY_METADATA,default=false"`
	Sessions                string `env:"MCP_OBS_SESSIONS,default=memory"`

	APIKey            string        `env:"MCP_OBS_API_KEY"`
	TelemetrySink     string        `env:"MCP_OBS_TELEMETRY_SINK,default=http"`
	TelemetryEndpoint string        `env:"MCP_OBS_TELEMETRY_ENDPOINT"`
	TelemetryTimeout  time.Duration `env:"MCP_OBS_TELEMETRY_TIMEOUT,default=10s"`
	SamplingRate      float64       `env:"MCP_OBS_SAMPLING_RATE,default=1.0"`
	SkipOperations    []string      `env:"MCP_OBS_SKIP_OPERATIONS"`
	ServiceName       string        `env:"MCP_OBS_SERVICE_NAME"`
	ServiceVersion    string        `env:"MCP_OBS_SERVICE_VERSION"`
	BreakerThreshold  int           `env:"MCP_OBS_BREAKER_THRESHOLD,default=5"`
	BreakerReset      time.Duration `env:"MCP_OBS_BREAKER_RESET,default=60s"`

	Redis         telemetry.RedisConfig
	RedisSessions redissessions.Config
}

// Load decodes the environment and validates the result. An environment
// with none of the variables set is not itself an error; validation then
// reports what is missing.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports errors that must abort startup.
func (c *Config) Validate() error {
	errs := []error{c.Auth().Validate()}
	switch c.Validator {
	case ValidatorIntrospection:
	case ValidatorJWT:
		if len(c.JWTAudience) == 0 {
			errs = append(errs, errors.New("config: MCP_OBS_JWT_AUDIENCE required for the jwt validator"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown token validator %q", c.Validator))
	}
	switch c.TelemetrySink {
	case SinkHTTP:
		errs = append(errs, c.Telemetry().Validate())
	case SinkRedis, SinkNone:
	default:
		errs = append(errs, fmt.Errorf("config: unknown telemetry sink %q", c.TelemetrySink))
	}
	switch c.Sessions {
	case SessionsMemory, SessionsRedis, SessionsNone:
	default:
		errs = append(errs, fmt.Errorf("config: unknown session store %q", c.Sessions))
	}
	if c.BreakerThreshold <= 0 {
		errs = append(errs, errors.New("config: breaker threshold must be positive"))
	}
	return errors.Join(errs...)
}

// Auth returns the OAuth configuration.
func (c *Config) Auth() auth.Config {
	return auth.Config{
		ServerSlug:           c.ServerSlug,
		AuthorityURL:         c.AuthorityURL,
		RequiredScopes:       auth.ParseScopes(c.RequiredScopes),
		ExemptOperations:     trimAll(c.ExemptOperations),
		Debug:                c.Debug,
		IntrospectionTimeout: c.IntrospectionTimeout,
		ResourceURL:          c.ResourceURL,
	}
}

// Telemetry returns the exporter configuration.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		ServerSlug:     c.ServerSlug,
		APIKey:         c.APIKey,
		Endpoint:       c.TelemetryEndpoint,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Timeout:        c.TelemetryTimeout,
		SamplingRate:   c.SamplingRate,
		SkipOperations: trimAll(c.SkipOperations),
		Debug:          c.Debug,
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
