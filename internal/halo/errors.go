package halo

import "fmt"

// ConfigError signals missing or malformed integration configuration.
// Surfaced immediately; never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "halopsa not configured: " + e.Reason
}

// AuthError signals a rejected client-credentials grant. Body carries the
// provider's response verbatim for diagnosis.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("halopsa auth failed (status %d): %s", e.StatusCode, e.Body)
}

// APIError wraps any non-2xx response from the ticket API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("halopsa api error (status %d): %s", e.StatusCode, e.Body)
}
