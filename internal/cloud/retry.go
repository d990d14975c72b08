package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"ktx/pkg/logging"
)

const (
	maxListAttempts   = 3
	retryInitialDelay = 500 * time.Millisecond
	retryMaxDelay     = 4 * time.Second
)

// retryable reports whether a discovery error is worth retrying.
// Credential problems are not: retrying them wastes rate budget and
// delays the operator-facing message.
func retryable(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var apiErr *APIError
	var rateErr *RateLimitedError
	return errors.As(err, &apiErr) || errors.As(err, &rateErr)
}

// withListRetry runs a provider listing call under the shared retry
// policy: up to maxListAttempts attempts with exponential backoff,
// retrying transient API and throttling failures only.
func withListRetry[T any](ctx context.Context, provider Provider, fn func() (T, error)) (T, error) {
	policy := retrypolicy.Builder[T]().
		HandleIf(func(_ T, err error) bool { return retryable(err) }).
		WithBackoff(retryInitialDelay, retryMaxDelay).
		WithMaxAttempts(maxListAttempts).
		OnRetry(func(e failsafe.ExecutionEvent[T]) {
			logging.Warn("cloud", "%s listing failed (attempt %d), retrying: %v",
				provider, e.Attempts(), e.LastError())
		}).
		Build()

	return failsafe.NewExecutor[T](policy).WithContext(ctx).Get(fn)
}
