// Package jwt issues and verifies short-lived HS512 access tokens.
//
// Tokens carry only sub, jti, iat, exp (and iss when configured). Verification
// is strict: the algorithm is pinned, iat and exp are required, iat may not be
// in the future, and sub and jti must be present. Any verification failure is
// reported as [ErrTokenInvalid] so callers cannot learn which check tripped.
//
// # What this package must NOT do
//
//   - Talk to Redis or any store directly; revocation is consulted through
//     the [Denylist] interface.
//   - Import authsession or session.
package jwt
