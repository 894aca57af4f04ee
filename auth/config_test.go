package auth

import (
	"reflect"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	good := Config{ServerSlug: "weather", AuthorityURL: "https://acme.mcp-obs.com/"}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := map[string]Config{
		"missing slug":      {AuthorityURL: "https://acme.mcp-obs.com"},
		"missing authority": {ServerSlug: "weather"},
		"bad scheme":        {ServerSlug: "weather", AuthorityURL: "ftp://acme"},
		"no host":           {ServerSlug: "weather", AuthorityURL: "https://"},
		"empty scope":       {ServerSlug: "weather", AuthorityURL: "https://acme", RequiredScopes: []string{""}},
		"negative timeout":  {ServerSlug: "weather", AuthorityURL: "https://acme", IntrospectionTimeout: -1},
		"bad resource":      {ServerSlug: "weather", AuthorityURL: "https://acme", ResourceURL: "/mcp"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestConfigURLs(t *testing.T) {
	cfg := Config{ServerSlug: "weather", AuthorityURL: "http://localhost:3000/"}
	cfg.normalize()
	if got := cfg.ResourceMetadataURL(); got != "http://localhost:3000/.well-known/oauth-protected-resource" {
		t.Fatalf("resource metadata url = %s", got)
	}
	if got := cfg.IntrospectionURL(); got != "http://localhost:3000/introspect" {
		t.Fatalf("introspection url = %s", got)
	}
	if cfg.IntrospectionTimeout != DefaultIntrospectionTimeout {
		t.Fatalf("timeout not defaulted")
	}
}

func TestConfigCopyIsolated(t *testing.T) {
	cfg := Config{RequiredScopes: []string{"read"}, ExemptOperations: []string{"ping"}}
	dup := cfg.Copy()
	cfg.RequiredScopes[0] = "admin"
	cfg.ExemptOperations[0] = "tools/list"
	if dup.RequiredScopes[0] != "read" || !dup.IsExempt("ping") {
		t.Fatalf("copy shares backing arrays")
	}
}

func TestProtectedResourceMetadata(t *testing.T) {
	cfg := Config{ServerSlug: "weather", AuthorityURL: "https://acme.mcp-obs.com/", RequiredScopes: []string{"read"}}
	doc := cfg.ProtectedResourceMetadata("https://weather.example.com/mcp")
	if doc.Resource != "https://weather.example.com/mcp" {
		t.Fatalf("resource = %s", doc.Resource)
	}
	if !reflect.DeepEqual(doc.AuthorizationServers, []string{"https://acme.mcp-obs.com"}) {
		t.Fatalf("authorization servers = %v", doc.AuthorizationServers)
	}
	if !reflect.DeepEqual(doc.ScopesSupported, []string{"read"}) {
		t.Fatalf("scopes = %v", doc.ScopesSupported)
	}
	if !reflect.DeepEqual(doc.BearerMethodsSupported, []string{"header"}) {
		t.Fatalf("bearer methods = %v", doc.BearerMethodsSupported)
	}

	cfg.ResourceURL = "https://api.example.com/"
	cfg.ScopesSupported = []string{"read", "write"}
	doc = cfg.ProtectedResourceMetadata("https://ignored.example.com/mcp")
	if doc.Resource != "https://api.example.com/" || len(doc.ScopesSupported) != 2 {
		t.Fatalf("overrides not applied: %+v", doc)
	}
}
