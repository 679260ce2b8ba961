// Package session holds the refresh-token session model and its Redis store.
//
// A refresh token is an opaque random secret. Its only authority is a live,
// non-revoked [Record] whose stored SHA-256 matches the presented value; the
// raw secret is returned once on issue and never persisted.
//
// # Rotation
//
// [Store.Rotate] runs as a single Lua script that reads the record, revokes
// it, and writes the successor. Under a race of two rotations of the same
// secret exactly one succeeds; the other observes [ErrRevoked] and gets no
// secret back. If the call fails after the script ran, the old secret stays
// dead.
//
// # Architecture boundaries
//
// This package owns the [Record] model, the sentinel errors shared by every
// refresh store implementation, and the Redis [Store]. The Postgres
// implementation lives in package postgres and reuses the same model.
//
// # What this package must NOT do
//
//   - Import authsession or jwt (no upward imports).
//   - Store plaintext secrets in [Record] fields.
package session
