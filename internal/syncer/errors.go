package syncer

import (
	"errors"
	"fmt"
)

// AuthError means the stored credentials are unusable and the user must
// reconnect. Never retried automatically.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderAPIError is any non-2xx, non-quota response from Google. It aborts
// the current period only; the period is retried oldest-first on the next
// invocation.
type ProviderAPIError struct {
	Status int
	Body   string
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("provider API error: status %d: %s", e.Status, e.Body)
}

// QuotaError means the backoff ceiling was exhausted on 429/quota responses.
// The whole run pauses; hitting other periods would be rate-limited too.
type QuotaError struct {
	Status int
	Body   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: status %d: %s", e.Status, e.Body)
}

// errBudgetExceeded signals that the invocation's wall-clock budget elapsed.
// Always a clean pause, never an error state.
var errBudgetExceeded = errors.New("execution budget exceeded")

// errPauseRequested signals that a cooperative pause was observed.
var errPauseRequested = errors.New("pause requested")
