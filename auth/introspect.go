package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultExpiryFallback is applied when the authority omits exp. It is a
// silent fallback local to introspection and must not be reused elsewhere.
const defaultExpiryFallback = time.Hour

// maxExpSeconds bounds exp so its millisecond form fits in an int64. Values
// at or above it are treated as absent.
const maxExpSeconds = math.MaxInt64 / 1000

// maxIntrospectionBody caps how much of an introspection response is read.
const maxIntrospectionBody = 1 << 20

// IntrospectionResult is the decoded body of an introspection response. It
// is consumed once to build an AuthContext and then discarded.
type IntrospectionResult struct {
	Active   bool     `json:"active"`
	Scope    string   `json:"scope,omitempty"`
	Sub      string   `json:"sub,omitempty"`
	UserID   string   `json:"mcp:user_id,omitempty"`
	Username string   `json:"username,omitempty"`
	Name     string   `json:"name,omitempty"`
	Picture  string   `json:"picture,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	Exp      float64  `json:"exp,omitempty"`
	Aud      Audience `json:"aud,omitempty"`
}

// Audience decodes an "aud" member that may be a single string or an array.
type Audience []string

func (a *Audience) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*a = nil
		} else {
			*a = Audience{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("aud must be a string or array of strings: %w", err)
	}
	*a = many
	return nil
}

// authContext builds the AuthContext for an active result.
func (r *IntrospectionResult) authContext(now time.Time) *AuthContext {
	userID := firstNonEmpty(r.Sub, r.UserID, "unknown")
	expiresAt := now.Add(defaultExpiryFallback).UnixMilli()
	if r.Exp > 0 && r.Exp < maxExpSeconds {
		expiresAt = int64(r.Exp) * 1000
	}
	return &AuthContext{
		UserID:    userID,
		Email:     firstNonEmpty(r.Username, "unknown"),
		Name:      r.Name,
		Image:     r.Picture,
		Scopes:    ParseScopes(r.Scope),
		ClientID:  firstNonEmpty(r.ClientID, "unknown"),
		ExpiresAt: expiresAt,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IntrospectionOption configures an IntrospectionValidator.
type IntrospectionOption func(*IntrospectionValidator)

// WithHTTPClient overrides the HTTP client. The validator still applies its
// own per-call timeout through the request context.
func WithHTTPClient(c *http.Client) IntrospectionOption {
	return func(v *IntrospectionValidator) {
		if c != nil {
			v.client = c
		}
	}
}

// WithIntrospectionLogger sets the logger. Logs are discarded by default.
func WithIntrospectionLogger(l *slog.Logger) IntrospectionOption {
	return func(v *IntrospectionValidator) {
		if l != nil {
			v.log = l
		}
	}
}

// WithIntrospectionURL overrides the endpoint derived from the authority URL.
func WithIntrospectionURL(u string) IntrospectionOption {
	return func(v *IntrospectionValidator) {
		if u != "" {
			v.endpoint = u
		}
	}
}

// WithIntrospectionClock overrides the time source used for the expiry
// fallback.
func WithIntrospectionClock(now func() time.Time) IntrospectionOption {
	return func(v *IntrospectionValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// IntrospectionValidator validates tokens by asking the authority's
// introspection endpoint. Every Validate call performs exactly one outbound
// request; nothing is cached and nothing is retried.
type IntrospectionValidator struct {
	client   *http.Client
	endpoint string
	slug     string
	timeout  time.Duration
	debug    bool
	log      *slog.Logger
	now      func() time.Time
}

var _ Validator = (*IntrospectionValidator)(nil)

// NewIntrospectionValidator returns a validator for cfg. It fails if cfg is
// not valid.
func NewIntrospectionValidator(cfg Config, opts ...IntrospectionOption) (*IntrospectionValidator, error) {
	cc := cfg.Copy()
	cc.normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	v := &IntrospectionValidator{
		client:   &http.Client{},
		endpoint: cc.IntrospectionURL(),
		slug:     cc.ServerSlug,
		timeout:  cc.IntrospectionTimeout,
		debug:    cc.Debug,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate introspects token. Any failure, whatever its cause, is reported
// as ErrInvalidToken; the cause is only logged.
func (v *IntrospectionValidator) Validate(ctx context.Context, token string) (*AuthContext, error) {
	res, err := v.introspect(ctx, token)
	if err != nil {
		if v.debug {
			v.log.DebugContext(ctx, "auth.introspect.fail", slog.String("err", err.Error()))
		}
		return nil, ErrInvalidToken
	}
	if !res.Active {
		if v.debug {
			v.log.DebugContext(ctx, "auth.introspect.inactive")
		}
		return nil, ErrInvalidToken
	}
	ac := res.authContext(v.now())
	if v.debug {
		v.log.DebugContext(ctx, "auth.introspect.ok", slog.String("user_id", ac.UserID), slog.String("client_id", ac.ClientID))
	}
	return ac, nil
}

func (v *IntrospectionValidator) introspect(ctx context.Context, token string) (*IntrospectionResult, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", token)
	form.Set("server_slug", v.slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxIntrospectionBody)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, body)
		return nil, fmt.Errorf("introspection returned status %d", resp.StatusCode)
	}

	var res IntrospectionResult
	if err := json.NewDecoder(body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	return &res, nil
}
