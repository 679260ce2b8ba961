// Package rate implements per-(endpoint class, client) token buckets in Redis.
//
// # Bucket semantics
//
// Each bucket holds at most Capacity tokens and is refilled to Capacity once
// per Window (interval refill, not a leaky bucket). A bucket is a Redis hash
// {tokens, reset} under rl:<class>:<client>, expiring at its reset instant.
// Consumption runs as a single Lua script, so it is atomic per bucket key and
// never contends across keys.
//
// # Client identity
//
// [ClientIdentity] combines the client IP with a 32-bit FNV hash of the
// User-Agent. Unrelated clients behind one NAT get separate buckets while the
// key space stays bounded; empty or oversized User-Agents collapse to
// "unknown".
//
// # What this package must NOT do
//
//   - Write HTTP responses; the middleware owns headers and status codes.
//   - Be imported outside the authsession module.
package rate
