// Package stores provides the Redis-backed password reset token store.
//
// # Design
//
// Each token is stored as a versioned, binary-encoded record keyed by the
// token's SHA-256, with a TTL equal to the token lifetime. A per-email sorted
// set tracks outstanding tokens so issuing past the cap evicts the oldest.
// Mutations use WATCH/MULTI optimistic transactions retried with
// sethvargo/go-retry. Redemption is single-use: the first transaction to mark
// a record used wins and every other attempt observes "not found or used".
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for reset records. It
// does NOT decide which emails get a token, enforce rate limits, or change
// passwords; the Engine does.
//
// # What this package must NOT do
//
//   - Import authsession or any sibling internal package other than internal.
//   - Log or expose plaintext tokens.
package stores
