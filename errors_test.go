package authsession

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLockedErrorRoundsUp(t *testing.T) {
	err := error(&LockedError{Remaining: 61 * time.Second})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("LockedError must match ErrAccountLocked")
	}
	var le *LockedError
	if !errors.As(fmt.Errorf("login: %w", err), &le) || le.RemainingMinutes() != 2 {
		t.Fatalf("expected 2 minutes, got %v", le)
	}
	if (&LockedError{}).RemainingMinutes() != 0 {
		t.Fatal("expired lock should report zero minutes")
	}
}

func TestRateLimitErrorRetryAfterFloor(t *testing.T) {
	err := &RateLimitError{RetryAfter: 200 * time.Millisecond}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitError must match ErrRateLimited")
	}
	if err.RetryAfterSeconds() != 1 {
		t.Fatalf("expected floor of 1s, got %d", err.RetryAfterSeconds())
	}
	if (&RateLimitError{RetryAfter: 2500 * time.Millisecond}).RetryAfterSeconds() != 3 {
		t.Fatal("expected 2.5s to round up to 3")
	}
}

func TestStoreUnavailableIsInternal(t *testing.T) {
	if !errors.Is(ErrStoreUnavailable, ErrInternal) {
		t.Fatal("ErrStoreUnavailable must wrap ErrInternal")
	}
	if errors.Is(ErrInternal, ErrStoreUnavailable) {
		t.Fatal("the relation must be one-way")
	}
}
