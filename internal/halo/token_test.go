package halo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type tokenServer struct {
	*httptest.Server
	grants   int
	lastForm map[string]string
	status   int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		ts.grants++
		ts.lastForm = map[string]string{}
		for k := range r.PostForm {
			ts.lastForm[k] = r.PostForm.Get(k)
		}
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(ts.Server.Close)
	return ts
}

func testCreds(authURL string) Credentials {
	return Credentials{
		AuthBaseURL:  authURL,
		APIBaseURL:   authURL,
		ClientID:     "cid",
		ClientSecret: "secret",
		Tenant:       "acme",
	}
}

func TestTokenCacheGrantAndReuse(t *testing.T) {
	ts := newTokenServer(t)
	tc := NewTokenCache()
	creds := testCreds(ts.URL)
	ctx := context.Background()

	tok, err := tc.Get(ctx, creds)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("token = %q", tok)
	}
	if ts.lastForm["grant_type"] != "client_credentials" {
		t.Fatalf("grant_type = %q", ts.lastForm["grant_type"])
	}
	if ts.lastForm["scope"] != "all" {
		t.Fatalf("scope = %q", ts.lastForm["scope"])
	}
	if ts.lastForm["tenant"] != "acme" {
		t.Fatalf("tenant = %q", ts.lastForm["tenant"])
	}
	if ts.lastForm["client_id"] != "cid" || ts.lastForm["client_secret"] != "secret" {
		t.Fatalf("credentials not sent in body: %v", ts.lastForm)
	}

	// Second call reuses the cached token.
	if _, err := tc.Get(ctx, creds); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if ts.grants != 1 {
		t.Fatalf("grants = %d, want 1", ts.grants)
	}
}

func TestTokenCacheOmitsEmptyTenant(t *testing.T) {
	ts := newTokenServer(t)
	tc := NewTokenCache()
	creds := testCreds(ts.URL)
	creds.Tenant = ""

	if _, err := tc.Get(context.Background(), creds); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, present := ts.lastForm["tenant"]; present {
		t.Fatalf("tenant param should be omitted: %v", ts.lastForm)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	ts := newTokenServer(t)
	tc := NewTokenCache()
	creds := testCreds(ts.URL)
	ctx := context.Background()

	if _, err := tc.Get(ctx, creds); err != nil {
		t.Fatalf("get: %v", err)
	}
	tc.Invalidate(creds)
	if _, err := tc.Get(ctx, creds); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if ts.grants != 2 {
		t.Fatalf("grants = %d, want 2", ts.grants)
	}
}

func TestTokenCacheRejectedGrant(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusUnauthorized
	tc := NewTokenCache()

	_, err := tc.Get(context.Background(), testCreds(ts.URL))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", authErr.StatusCode)
	}
}

func TestTokenCacheSeparateTenants(t *testing.T) {
	ts := newTokenServer(t)
	tc := NewTokenCache()
	ctx := context.Background()

	a := testCreds(ts.URL)
	b := testCreds(ts.URL)
	b.Tenant = "other"
	if _, err := tc.Get(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := tc.Get(ctx, b); err != nil {
		t.Fatal(err)
	}
	if ts.grants != 2 {
		t.Fatalf("grants = %d, want one per tenant", ts.grants)
	}
}
