// Package authsession issues, validates, rotates and revokes the
// credentials of authenticated HTTP sessions.
//
// An [Engine] composes a short-lived HS512 access token, an opaque refresh
// secret backed by a revocable store record, a jti blacklist, a failed-login
// lockout and per-endpoint token-bucket rate limits into the account flows:
// register, login, refresh, logout, logout-all, change password, forgot and
// reset password, and session management. Build one with [New]:
//
//	engine, err := authsession.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithAccountStore(accounts).
//		Build()
//
// Engine methods are safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// This package is the public surface. It exposes [Engine], [Builder],
// [Config], the error taxonomy and value types. The Redis-backed stores live
// under internal/, session/ and revocation/; durable Postgres stores live in
// postgres/. HTTP transport lives in middleware/ and httpapi/.
//
// # What this package must NOT do
//
//   - Return raw refresh secrets or reset tokens anywhere except to the
//     client that owns them, or write them to logs and audit events.
//   - Report a backend outage as an invalid credential.
//   - Distinguish an unknown email from a wrong password, or a foreign
//     session from a missing one.
package authsession
