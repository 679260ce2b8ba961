package authsession

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/authsession/password"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every [*LockedError].
	ErrAccountLocked = errors.New("account locked")
	// ErrTokenInvalid is the single answer for any access or refresh token
	// that fails verification, including malformed, forged and blacklisted ones.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned when a refresh token was revoked or already rotated.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired is returned when a refresh token outlived its TTL.
	ErrTokenExpired = errors.New("token expired")
	// ErrRateLimited is matched by every [*RateLimitError].
	ErrRateLimited = errors.New("rate limited")
	// ErrResetTokenInvalid covers empty, unknown, used and expired reset tokens.
	ErrResetTokenInvalid  = errors.New("invalid reset token")
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrResourceNotFound is also returned for resources owned by someone
	// else, so existence is never confirmed.
	ErrResourceNotFound = errors.New("resource not found")
	ErrPasswordPolicy   = errors.New("password policy violation")
	ErrPasswordReuse    = errors.New("new password must be different from current password")
	// ErrInvalidInput covers malformed request fields such as an email
	// without an @.
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	// ErrStoreUnavailable means a backing store failed or timed out. It wraps
	// ErrInternal, is safe to retry, and never means a credential is invalid.
	ErrStoreUnavailable = fmt.Errorf("%w: store unavailable", ErrInternal)
	ErrEngineNotReady   = errors.New("engine not initialized")

	// ErrAccountNotFound is the AccountStore contract for a missing account.
	// The Engine never surfaces it directly.
	ErrAccountNotFound = errors.New("account not found")
)

// LockedError reports a login blocked by the failed-attempt guard.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry in %d minute(s)", ErrAccountLocked.Error(), e.RemainingMinutes())
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RemainingMinutes rounds the remaining lock time up to whole minutes.
func (e *LockedError) RemainingMinutes() int64 {
	if e.Remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(e.Remaining.Minutes()))
}

// RateLimitError carries the bucket state of a rejected request.
type RateLimitError struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds is RetryAfter rounded up, never below one second.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	s := int64(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// PolicyViolationError reports a password rejected by the policy or by the
// hasher's length limits. It matches ErrPasswordPolicy.
type PolicyViolationError struct {
	cause error
}

func (e *PolicyViolationError) Error() string {
	return ErrPasswordPolicy.Error() + ": " + e.cause.Error()
}

func (e *PolicyViolationError) Is(target error) bool {
	return target == ErrPasswordPolicy
}

func (e *PolicyViolationError) Unwrap() error {
	return e.cause
}

// Violations lists the failed rules, or the single length error.
func (e *PolicyViolationError) Violations() []string {
	var pe *password.PolicyError
	if errors.As(e.cause, &pe) {
		return append([]string(nil), pe.Violations...)
	}
	return []string{e.cause.Error()}
}
