package streaminghttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mcp-obs/mcp-server-go/internal/wellknown"
)

// oauthProxyPrefix is where the authority serves its OAuth endpoints.
const oauthProxyPrefix = "/mcp-auth/oauth"

// fetchAuthorityMetadata discovers the authority's metadata. go-oidc checks
// that the advertised issuer matches authority.
func fetchAuthorityMetadata(ctx context.Context, authority string, client *http.Client) (*wellknown.AuthServerMetadata, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("authority discovery failed: %w", err)
	}
	var md wellknown.AuthServerMetadata
	if err := provider.Claims(&md); err != nil {
		return nil, fmt.Errorf("invalid authority metadata: %w", err)
	}
	return &md, nil
}

// oauthProxy forwards the client-facing OAuth endpoints to the authority:
// /authorize by redirect, /token and /register by reverse proxy.
type oauthProxy struct {
	authority *url.URL
	rp        *httputil.ReverseProxy
	log       *slog.Logger
}

func newOAuthProxy(authority string, client *http.Client, log *slog.Logger) (*oauthProxy, error) {
	u, err := url.Parse(strings.TrimRight(authority, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid authority URL %q: %w", authority, err)
	}
	p := &oauthProxy{authority: u, log: log}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.Out.URL.Path = u.Path + oauthProxyPrefix + pr.In.URL.Path
			pr.Out.URL.RawPath = ""
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.log.WarnContext(r.Context(), "oauth.proxy.fail", slog.String("path", r.URL.Path), slog.String("err", err.Error()))
			writeJSONError(w, http.StatusBadGateway, "authorization server unreachable")
		},
	}
	if client != nil {
		p.rp.Transport = client.Transport
	}
	return p, nil
}

// handleAuthorize redirects the browser to the authority, keeping the query.
func (p *oauthProxy) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	target := p.authority.String() + oauthProxyPrefix + "/authorize"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	p.log.DebugContext(r.Context(), "oauth.proxy.authorize")
	http.Redirect(w, r, target, http.StatusFound)
}

// ServeHTTP proxies /token and /register.
func (p *oauthProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.log.DebugContext(r.Context(), "oauth.proxy.forward", slog.String("path", r.URL.Path))
	p.rp.ServeHTTP(w, r)
}
