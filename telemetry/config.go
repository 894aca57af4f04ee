package telemetry

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	// DefaultEndpoint is the mcp-obs collector.
	DefaultEndpoint = "https://api.mcp-obs.com/otel/traces"
	// DefaultServiceVersion is reported when none is configured.
	DefaultServiceVersion = "1.0.0"
	// DefaultExportTimeout bounds one export attempt.
	DefaultExportTimeout = 10 * time.Second
)

// Config describes where and how records are shipped.
type Config struct {
	ServerSlug string
	APIKey     string
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// ServiceName defaults to "<slug>-mcp-server".
	ServiceName    string
	ServiceVersion string
	// Headers are added to every collector request.
	Headers map[string]string
	Timeout time.Duration
	// SamplingRate is the fraction of operations recorded: >= 1 records
	// everything, <= 0 nothing.
	SamplingRate float64
	// SkipOperations are never recorded.
	SkipOperations []string
	Debug          bool
}

// Validate reports configuration errors for the HTTP collector.
func (c Config) Validate() error {
	var errs []error
	if c.ServerSlug == "" {
		errs = append(errs, errors.New("telemetry: server slug required"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("telemetry: api key required"))
	}
	if c.Endpoint != "" {
		if u, err := url.Parse(c.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry: invalid endpoint %q", c.Endpoint))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("telemetry: negative timeout"))
	}
	return errors.Join(errs...)
}

func (c Config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return DefaultEndpoint
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultExportTimeout
}

// Resource derives the resource attributes from c.
func (c Config) Resource() Resource {
	r := Resource{ServiceName: c.ServiceName, ServiceVersion: c.ServiceVersion, ServerSlug: c.ServerSlug}
	if r.ServiceName == "" {
		r.ServiceName = c.ServerSlug + "-mcp-server"
	}
	if r.ServiceVersion == "" {
		r.ServiceVersion = DefaultServiceVersion
	}
	return r
}

// InstrumentConfig derives the instrumentation settings from c.
func (c Config) InstrumentConfig() InstrumentConfig {
	return InstrumentConfig{
		ServerSlug:     c.ServerSlug,
		SamplingRate:   c.SamplingRate,
		SkipOperations: append([]string(nil), c.SkipOperations...),
	}
}
