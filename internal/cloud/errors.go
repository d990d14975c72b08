package cloud

import (
	"fmt"
	"strings"
)

// AuthError indicates the provider rejected our credentials. It is
// surfaced immediately and never retried.
type AuthError struct {
	Provider Provider
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitedError indicates the provider throttled us; transient and
// retried with backoff.
type RateLimitedError struct {
	Provider Provider
	Err      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// APIError is any other provider API failure; treated as transient and
// retried with backoff before surfacing.
type APIError struct {
	Provider Provider
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// classifyCLIError buckets a provider CLI failure by its stderr text.
// The CLIs do not expose machine-readable error codes, so this is a
// phrase match over the known credential and throttling messages.
func classifyCLIError(provider Provider, stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case containsAny(lower,
		"credential", "login", "unauthorized", "forbidden", "expired",
		"accessdenied", "access denied", "please run", "reauthentication",
		"401", "403"):
		return &AuthError{Provider: provider, Err: err}
	case containsAny(lower, "429", "rate exceeded", "rate limit", "throttl", "toomanyrequests"):
		return &RateLimitedError{Provider: provider, Err: err}
	default:
		return &APIError{Provider: provider, Err: err}
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
