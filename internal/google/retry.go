package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

// Backoff bounds the quota retry loop: waits start at Initial and double
// until total waiting reaches Ceiling, after which QuotaError propagates.
type Backoff struct {
	Initial time.Duration
	Ceiling time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 2 * time.Second, Ceiling: 2 * time.Minute}
}

// call runs fn with the cross-cutting provider-call policy: one transparent
// token refresh on 401, bounded exponential backoff on 429/quota, and every
// other non-2xx mapped into the sync error taxonomy. Sleeps are
// context-aware so a cancelled run never waits out backoff.
func call(ctx context.Context, b Backoff, refresh func(context.Context) error, fn func() error) error {
	refreshed := false
	delay := b.Initial
	var waited time.Duration

	for {
		err := fn()
		if err == nil {
			return nil
		}

		var gerr *googleapi.Error
		if !errors.As(err, &gerr) {
			// Network failure or context timeout; the caller decides
			return err
		}

		switch {
		case gerr.Code == http.StatusUnauthorized && !refreshed:
			refreshed = true
			if rerr := refresh(ctx); rerr != nil {
				return rerr
			}

		case isQuotaResponse(gerr):
			if waited >= b.Ceiling {
				return &syncer.QuotaError{Status: gerr.Code, Body: gerr.Body}
			}
			wait := delay
			if waited+wait > b.Ceiling {
				wait = b.Ceiling - waited
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			waited += wait
			delay *= 2

		default:
			return &syncer.ProviderAPIError{Status: gerr.Code, Body: gerr.Body}
		}
	}
}

// isQuotaResponse matches 429 and the 403 variants Google uses for quota.
func isQuotaResponse(gerr *googleapi.Error) bool {
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
