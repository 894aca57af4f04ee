package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mcp-obs/mcp-server-go/internal/wellknown"
)

// DefaultIntrospectionTimeout bounds a single introspection round trip.
const DefaultIntrospectionTimeout = 10 * time.Second

// ProtectedResourceMetadataPath is the RFC 9728 well-known suffix clients
// fetch after receiving a 401 challenge.
const ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"

// Config is the process-wide OAuth configuration. It is loaded once at
// startup; NewMiddleware and NewIntrospectionValidator take copies so later
// mutation of the caller's value has no effect.
type Config struct {
	// ServerSlug identifies this server to the authority.
	ServerSlug string
	// AuthorityURL is the base URL of the authorization platform, e.g.
	// "https://acme.mcp-obs.com" or "http://localhost:3000".
	AuthorityURL string
	// RequiredScopes must all be granted for non-exempt operations.
	RequiredScopes []string
	// ExemptOperations skip token validation entirely.
	ExemptOperations []string
	// Debug enables verbose logging of authentication decisions.
	Debug bool
	// IntrospectionTimeout defaults to DefaultIntrospectionTimeout.
	IntrospectionTimeout time.Duration
	// ResourceURL is the protected resource identifier advertised in the
	// discovery document. Transports default it to their public endpoint.
	ResourceURL string
	// ScopesSupported is advertised in the discovery document. It defaults
	// to RequiredScopes.
	ScopesSupported []string
}

// Validate reports configuration errors that must abort startup.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServerSlug) == "" {
		errs = append(errs, errors.New("auth: server slug required"))
	}
	if strings.TrimSpace(c.AuthorityURL) == "" {
		errs = append(errs, errors.New("auth: authority URL required"))
	} else {
		u, err := url.Parse(c.AuthorityURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("auth: invalid authority URL %q: %w", c.AuthorityURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("auth: authority URL must use http or https, got %q", u.Scheme))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("auth: authority URL %q has no host", c.AuthorityURL))
		}
	}
	for _, s := range c.RequiredScopes {
		if s == "" {
			errs = append(errs, errors.New("auth: empty required scope entry"))
			break
		}
	}
	if c.ResourceURL != "" {
		if u, err := url.Parse(c.ResourceURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("auth: invalid resource URL %q", c.ResourceURL))
		}
	}
	if c.IntrospectionTimeout < 0 {
		errs = append(errs, errors.New("auth: negative introspection timeout"))
	}
	return errors.Join(errs...)
}

// Copy returns a deep copy safe for mutation by the caller.
func (c Config) Copy() Config {
	dup := c
	dup.RequiredScopes = append([]string(nil), c.RequiredScopes...)
	dup.ExemptOperations = append([]string(nil), c.ExemptOperations...)
	dup.ScopesSupported = append([]string(nil), c.ScopesSupported...)
	return dup
}

func (c *Config) normalize() {
	c.AuthorityURL = strings.TrimRight(strings.TrimSpace(c.AuthorityURL), "/")
	c.ServerSlug = strings.TrimSpace(c.ServerSlug)
	if c.IntrospectionTimeout == 0 {
		c.IntrospectionTimeout = DefaultIntrospectionTimeout
	}
}

// ResourceMetadataURL returns the discovery document location advertised in
// Bearer challenges.
func (c Config) ResourceMetadataURL() string {
	return strings.TrimRight(c.AuthorityURL, "/") + ProtectedResourceMetadataPath
}

// IntrospectionURL returns the authority's token introspection endpoint.
func (c Config) IntrospectionURL() string {
	return strings.TrimRight(c.AuthorityURL, "/") + "/introspect"
}

// IsExempt reports whether operation bypasses validation.
func (c Config) IsExempt(operation string) bool {
	for _, op := range c.ExemptOperations {
		if op == operation {
			return true
		}
	}
	return false
}

// ProtectedResourceMetadata returns the RFC 9728 discovery document for the
// resource at resourceURL. c.ResourceURL, when set, takes precedence.
func (c Config) ProtectedResourceMetadata(resourceURL string) wellknown.ProtectedResourceMetadata {
	if c.ResourceURL != "" {
		resourceURL = c.ResourceURL
	}
	scopes := c.ScopesSupported
	if len(scopes) == 0 {
		scopes = c.RequiredScopes
	}
	return wellknown.ProtectedResourceMetadata{
		Resource:               resourceURL,
		AuthorizationServers:   []string{strings.TrimRight(c.AuthorityURL, "/")},
		ScopesSupported:        append([]string{}, scopes...),
		BearerMethodsSupported: []string{"header"},
	}
}
