package halo

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenCache holds one bearer token per credential tuple with expiry taken
// from the token response. Get refreshes lazily; Invalidate drops a token the
// API rejected so the next call fetches a fresh one.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token

	// HTTPClient is used for the token exchange; nil means http.DefaultClient
	// with a short timeout.
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens: map[string]*oauth2.Token{},
		Now:    time.Now,
	}
}

func (tc *TokenCache) httpClient() *http.Client {
	if tc.HTTPClient != nil {
		return tc.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Get returns a valid bearer token for the credentials, performing the
// client-credentials grant when no unexpired token is cached.
func (tc *TokenCache) Get(ctx context.Context, creds Credentials) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	key := creds.cacheKey()
	if tok, ok := tc.tokens[key]; ok && tok.Valid() {
		return tok.AccessToken, nil
	}

	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.AuthBaseURL + "/auth/token",
		Scopes:       []string{"all"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if creds.Tenant != "" {
		cfg.EndpointParams = url.Values{"tenant": {creds.Tenant}}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.httpClient())
	tok, err := cfg.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return "", &AuthError{StatusCode: status, Body: string(retrieveErr.Body)}
		}
		return "", &AuthError{Body: err.Error()}
	}
	tc.tokens[key] = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token for the credential tuple.
func (tc *TokenCache) Invalidate(creds Credentials) {
	tc.mu.Lock()
	delete(tc.tokens, creds.cacheKey())
	tc.mu.Unlock()
}
