package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/internal/rate"
)

// RateDecision is the bucket state after one admission check.
type RateDecision = rate.Decision

// ClientIdentity derives the rate-limit key of a client from its IP and a
// bounded hash of its User-Agent.
func ClientIdentity(ip, userAgent string) string {
	return rate.ClientIdentity(ip, userAgent)
}

// CheckRate consumes one token from the (class, clientID) bucket. A
// rejection is a *RateLimitError. When the backend is unreachable the
// request is admitted with a warning, or rejected with ErrStoreUnavailable
// if RateLimit.FailClosed is set. With rate limiting disabled every call
// is admitted.
func (e *Engine) CheckRate(ctx context.Context, class RateClass, clientID string) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{Allowed: true}, nil
	}

	d, err := e.limiter.TryConsume(ctx, class, clientID)
	if err != nil {
		if errors.Is(err, rate.ErrUnknownClass) {
			return RateDecision{Allowed: true}, nil
		}
		if e.config.RateLimit.FailClosed {
			return RateDecision{}, e.storeFailure(ctx, "rate."+string(class), err)
		}
		e.logger.WarnContext(ctx, "authsession: rate limiter unavailable, admitting request", "class", string(class), "error", err)
		return RateDecision{Allowed: true}, nil
	}

	if !d.Allowed {
		e.emitRateLimit(ctx, class, clientID)
		return d, &RateLimitError{
			Limit:      d.Limit,
			Remaining:  d.Remaining,
			RetryAfter: d.RetryAfter,
			Reset:      d.Reset,
		}
	}
	return d, nil
}
