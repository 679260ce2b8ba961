package rate

import "errors"

var (
	// ErrRateLimited is returned by [Decision.Err] when a request was refused.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps bucket backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownClass is returned for an endpoint class with no rule.
	ErrUnknownClass = errors.New("unknown rate limit class")
)
