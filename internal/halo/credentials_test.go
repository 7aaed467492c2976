package halo

import (
	"errors"
	"testing"

	"syncline/internal/domain"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://example.halopsa.com", "https://example.halopsa.com"},
		{"https://example.halopsa.com/", "https://example.halopsa.com"},
		{"https://example.halopsa.com///", "https://example.halopsa.com"},
		{"https://example.halopsa.com/auth", "https://example.halopsa.com"},
		{"https://example.halopsa.com/auth/", "https://example.halopsa.com"},
		{"https://example.halopsa.com/api", "https://example.halopsa.com"},
		{"https://example.halopsa.com/API/", "https://example.halopsa.com"},
	}
	for _, c := range cases {
		got, err := normalizeBaseURL(c.in)
		if err != nil {
			t.Errorf("normalizeBaseURL(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeBaseURLRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "   ", "not a url", "/relative/path"} {
		if _, err := normalizeBaseURL(in); err == nil {
			t.Errorf("normalizeBaseURL(%q): expected error", in)
		}
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Setenv(EnvClientID, "cid")
	t.Setenv(EnvClientSecret, "secret")
	t.Setenv(EnvTenant, "acme")

	creds, err := ResolveCredentials(domain.IntegrationSettings{
		HaloAuthURL: "https://example.halopsa.com/auth/",
		HaloAPIURL:  "https://example.halopsa.com/api",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.AuthBaseURL != "https://example.halopsa.com" || creds.APIBaseURL != "https://example.halopsa.com" {
		t.Fatalf("base urls = %q %q", creds.AuthBaseURL, creds.APIBaseURL)
	}
	if creds.ClientID != "cid" || creds.ClientSecret != "secret" || creds.Tenant != "acme" {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestResolveCredentialsMissingEnv(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, err := ResolveCredentials(domain.IntegrationSettings{
		HaloAuthURL: "https://example.halopsa.com",
		HaloAPIURL:  "https://example.halopsa.com",
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestResolveCredentialsBadURL(t *testing.T) {
	t.Setenv(EnvClientID, "cid")
	t.Setenv(EnvClientSecret, "secret")

	_, err := ResolveCredentials(domain.IntegrationSettings{
		HaloAuthURL: "",
		HaloAPIURL:  "https://example.halopsa.com",
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCacheKeyDistinguishesTenants(t *testing.T) {
	a := Credentials{AuthBaseURL: "https://x", ClientID: "c", Tenant: "t1"}
	b := Credentials{AuthBaseURL: "https://x", ClientID: "c", Tenant: "t2"}
	if a.cacheKey() == b.cacheKey() {
		t.Fatalf("tenants must not share a cache key")
	}
}
