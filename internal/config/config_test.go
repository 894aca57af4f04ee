package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("MCP_OBS_SERVER_SLUG", "weather")
	t.Setenv("MCP_OBS_AUTHORITY_URL", "https://acme.mcp-obs.com")
	t.Setenv("MCP_OBS_API_KEY", "key")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	t.Setenv("MCP_OBS_REQUIRED_SCOPES", "read, write")
	t.Setenv("MCP_OBS_EXEMPT_OPERATIONS", "ping; initialize")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Validator != ValidatorIntrospection || cfg.TelemetrySink != SinkHTTP {
		t.Fatalf("validator/sink = %q/%q", cfg.Validator, cfg.TelemetrySink)
	}
	if cfg.SamplingRate != 1.0 || cfg.IntrospectionTimeout != 10*time.Second || cfg.BreakerThreshold != 5 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Sessions != SessionsMemory || cfg.RedisSessions.TTL != 24*time.Hour {
		t.Fatalf("sessions = %q ttl %v", cfg.Sessions, cfg.RedisSessions.TTL)
	}
	if cfg.Redis.StreamPrefix != "mcp-obs:telemetry:" {
		t.Fatalf("redis prefix = %q", cfg.Redis.StreamPrefix)
	}

	ac := cfg.Auth()
	if !reflect.DeepEqual(ac.RequiredScopes, []string{"read", "write"}) {
		t.Fatalf("scopes = %v", ac.RequiredScopes)
	}
	if !reflect.DeepEqual(ac.ExemptOperations, []string{"ping", "initialize"}) {
		t.Fatalf("exempt = %v", ac.ExemptOperations)
	}
	if res := cfg.Telemetry().Resource(); res.ServiceName != "weather-mcp-server" {
		t.Fatalf("service name = %q", res.ServiceName)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing authority", map[string]string{"MCP_OBS_AUTHORITY_URL": ""}, "authority URL required"},
		{"bad validator", map[string]string{"MCP_OBS_TOKEN_VALIDATOR": "magic"}, "unknown token validator"},
		{"jwt without audience", map[string]string{"MCP_OBS_TOKEN_VALIDATOR": "jwt"}, "MCP_OBS_JWT_AUDIENCE"},
		{"http sink without key", map[string]string{"MCP_OBS_API_KEY": ""}, "api key required"},
		{"bad sink", map[string]string{"MCP_OBS_TELEMETRY_SINK": "kafka"}, "unknown telemetry sink"},
		{"bad sessions", map[string]string{"MCP_OBS_SESSIONS": "disk"}, "unknown session store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRedisSinkNeedsNoAPIKey(t *testing.T) {
	setBase(t)
	t.Setenv("MCP_OBS_API_KEY", "")
	t.Setenv("MCP_OBS_TELEMETRY_SINK", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}
