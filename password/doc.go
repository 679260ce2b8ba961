// Package password hashes and verifies account passwords and checks new
// passwords against a strength policy.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes still verify. [Argon2.NeedsUpgrade] reports true for
// them and for Argon2id hashes made with weaker parameters, so the caller can
// re-hash after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the policy check. Deciding when
// the policy applies is the Engine's job.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authsession package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
