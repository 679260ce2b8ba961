// Package limiters provides the login attempt guard: a per-identifier failure
// counter that escalates to a temporary lock.
//
// The guard is nil-safe: calling any method on a nil receiver is a no-op that
// reports "not locked".
//
// # Architecture boundaries
//
// The guard owns its Redis key namespace (ala: counters, all: locks) and its
// error type. Policy comes from [LoginGuardConfig].
//
// # What this package must NOT do
//
//   - Import authsession or any sibling internal package.
//   - Verify credentials; callers decide what counts as a failure.
package limiters
