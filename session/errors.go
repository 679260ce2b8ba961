package session

import "errors"

var (
	// ErrNotFound means no record matches the presented secret or id.
	ErrNotFound = errors.New("refresh session not found")
	// ErrRevoked means the record exists but was revoked or already rotated.
	ErrRevoked = errors.New("refresh session revoked")
	// ErrExpired means the record outlived its refresh TTL.
	ErrExpired = errors.New("refresh session expired")
	// ErrUnavailable wraps backend failures. It is retryable and never
	// means the credential is invalid.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrCorrupt means a stored record could not be decoded.
	ErrCorrupt = errors.New("refresh session corrupt")
)
