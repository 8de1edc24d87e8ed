package google

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

func noRefresh(ctx context.Context) error { return nil }

func fastBackoff() Backoff {
	return Backoff{Initial: time.Millisecond, Ceiling: 5 * time.Millisecond}
}

func TestCallSucceedsImmediately(t *testing.T) {
	calls := 0
	err := call(context.Background(), fastBackoff(), noRefresh, func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestCallRefreshesOnceOn401(t *testing.T) {
	refreshes := 0
	refresh := func(ctx context.Context) error {
		refreshes++
		return nil
	}

	calls := 0
	err := call(context.Background(), fastBackoff(), refresh, func() error {
		calls++
		if calls == 1 {
			return &googleapi.Error{Code: http.StatusUnauthorized}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if refreshes != 1 || calls != 2 {
		t.Errorf("refreshes = %d, calls = %d, want 1 and 2", refreshes, calls)
	}
}

func TestCallDoesNotRefreshTwice(t *testing.T) {
	refreshes := 0
	refresh := func(ctx context.Context) error {
		refreshes++
		return nil
	}

	err := call(context.Background(), fastBackoff(), refresh, func() error {
		return &googleapi.Error{Code: http.StatusUnauthorized, Body: "still unauthorized"}
	})

	var apiErr *syncer.ProviderAPIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want ProviderAPIError with 401", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", refreshes)
	}
}

func TestCallBacksOffThenReturnsQuotaError(t *testing.T) {
	calls := 0
	start := time.Now()
	err := call(context.Background(), fastBackoff(), noRefresh, func() error {
		calls++
		return &googleapi.Error{Code: http.StatusTooManyRequests, Body: "rate limited"}
	})

	var quotaErr *syncer.QuotaError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("err = %v, want QuotaError", err)
	}
	if quotaErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", quotaErr.Status)
	}
	if calls < 2 {
		t.Errorf("calls = %d, want retries before giving up", calls)
	}
	// Total waiting is clamped to the ceiling
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("took %v, backoff not bounded by ceiling", elapsed)
	}
}

func TestCallRecoversWithinBackoff(t *testing.T) {
	calls := 0
	err := call(context.Background(), fastBackoff(), noRefresh, func() error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: http.StatusTooManyRequests}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCallStopsBackoffOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := call(ctx, Backoff{Initial: time.Hour, Ceiling: 2 * time.Hour}, noRefresh, func() error {
		return &googleapi.Error{Code: http.StatusTooManyRequests}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCallPassesThroughNonAPIErrors(t *testing.T) {
	sentinel := errors.New("connection reset")
	err := call(context.Background(), fastBackoff(), noRefresh, func() error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want the raw error", err)
	}
}

func TestIsQuotaResponse(t *testing.T) {
	tests := []struct {
		name string
		err  *googleapi.Error
		want bool
	}{
		{"429", &googleapi.Error{Code: 429}, true},
		{"403 rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"403 user rate limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"403 daily limit", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "dailyLimitExceeded"}}}, true},
		{"403 forbidden", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}, false},
		{"500", &googleapi.Error{Code: 500}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isQuotaResponse(tt.err); got != tt.want {
				t.Errorf("isQuotaResponse = %v, want %v", got, tt.want)
			}
		})
	}
}
