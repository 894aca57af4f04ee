package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithSinkHTTPClient overrides the HTTP client.
func WithSinkHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) {
		if c != nil {
			s.client = c
		}
	}
}

// HTTPSink posts OTLP/JSON batches to a collector.
type HTTPSink struct {
	client   *http.Client
	endpoint string
	apiKey   string
	headers  map[string]string
	resource Resource
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink validates cfg and returns a sink for its collector endpoint.
func NewHTTPSink(cfg Config, opts ...HTTPSinkOption) (*HTTPSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &HTTPSink{
		client:   &http.Client{},
		endpoint: cfg.endpoint(),
		apiKey:   cfg.APIKey,
		headers:  make(map[string]string, len(cfg.Headers)),
		resource: cfg.Resource(),
	}
	for k, v := range cfg.Headers {
		s.headers[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Endpoint returns the collector URL.
func (s *HTTPSink) Endpoint() string { return s.endpoint }

// Export posts recs. Transport errors and non-2xx responses are errors.
func (s *HTTPSink) Export(ctx context.Context, recs []Record) error {
	body, err := EncodeOTLP(s.resource, recs)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build collector request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("collector request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
