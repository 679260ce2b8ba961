// Package revocation keeps the short-lived denylist of revoked access-token
// identifiers (jti).
//
// Entries live exactly as long as an access token can: once the access TTL has
// elapsed the token is dead on its own and the entry can be forgotten, so every
// key is written with that TTL and Redis does the cleanup.
//
// # Per-subject revocation
//
// A jti-keyed denylist cannot reach tokens whose identifiers it never saw. When
// [Config.TrackSubjects] is enabled the cache also records each issued jti in a
// per-subject sorted set (scored by expiry) so [Cache.BlacklistAllForSubject]
// can deny every outstanding token at once. With tracking disabled that call
// only logs the request and tokens issued earlier stay valid until they expire.
package revocation
