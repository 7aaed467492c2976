package halo

import (
	"net/url"
	"os"
	"strings"

	"syncline/internal/domain"
)

// Environment variables supplying the service-account credentials. Base URLs
// come from the IntegrationSettings row instead, since admins edit them at
// runtime.
const (
	EnvClientID     = "SYNCLINE_HALO_CLIENT_ID"
	EnvClientSecret = "SYNCLINE_HALO_CLIENT_SECRET"
	EnvTenant       = "SYNCLINE_HALO_TENANT"
)

// Credentials is everything needed to talk to one HaloPSA instance.
type Credentials struct {
	AuthBaseURL  string
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	Tenant       string
}

// cacheKey identifies the credential tuple for token caching.
func (c Credentials) cacheKey() string {
	return c.AuthBaseURL + "|" + c.ClientID + "|" + c.Tenant
}

// ResolveCredentials combines environment credentials with the settings row
// and normalizes both base URLs.
func ResolveCredentials(settings domain.IntegrationSettings) (Credentials, error) {
	creds := Credentials{
		ClientID:     strings.TrimSpace(os.Getenv(EnvClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(EnvClientSecret)),
		Tenant:       strings.TrimSpace(os.Getenv(EnvTenant)),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return Credentials{}, &ConfigError{Reason: "client id/secret missing from environment"}
	}
	authURL, err := normalizeBaseURL(settings.HaloAuthURL)
	if err != nil {
		return Credentials{}, &ConfigError{Reason: "auth url: " + err.Error()}
	}
	apiURL, err := normalizeBaseURL(settings.HaloAPIURL)
	if err != nil {
		return Credentials{}, &ConfigError{Reason: "api url: " + err.Error()}
	}
	creds.AuthBaseURL = authURL
	creds.APIBaseURL = apiURL
	return creds, nil
}

// normalizeBaseURL strips trailing slashes, then a trailing /auth or /api
// segment, so callers derive the same base regardless of how the admin
// entered the URL.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errURLRequired
	}
	raw = strings.TrimRight(raw, "/")
	lower := strings.ToLower(raw)
	for _, suffix := range []string{"/auth", "/api"} {
		if strings.HasSuffix(lower, suffix) {
			raw = raw[:len(raw)-len(suffix)]
			break
		}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errURLMalformed
	}
	return raw, nil
}

type urlError string

func (e urlError) Error() string { return string(e) }

const (
	errURLRequired  = urlError("not set")
	errURLMalformed = urlError("not an absolute URL")
)
