// Package internal contains helpers that are private to authsession: secure
// random secrets, one-way secret hashing, and identifier generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: login attempt guard (failure counter + lockout)
//   - logging: slog setup with trace correlation and oops-aware error logs
//   - rate: Redis token-bucket rate limiter and client identity derivation
//   - stores: password reset token store
//
// # What this package must NOT do
//
//   - Export types that appear in the public authsession API.
//   - Log or persist raw secrets.
package internal
