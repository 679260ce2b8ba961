// Package middleware is the ordered HTTP request pipeline in front of
// authsession handlers.
//
// # Stages
//
//   - [ClientInfo] records the caller's IP, User-Agent and device label on
//     the request context.
//   - [RateLimit] consumes one token of a rate class for the caller and
//     publishes the X-RateLimit-* headers.
//   - [Authenticate] requires an `Authorization: Bearer <token>` header and
//     stores the validated result on the context.
//   - [RequireRole] admits only accounts holding a role.
//
// [Chain] composes stages so the first one listed runs first. A stage that
// rejects a request hands the error to an [ErrorWriter] and never calls the
// next stage.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself (the Engine validates).
//   - Talk to Redis directly.
package middleware
