// Package httpapi is the JSON transport for an authsession Engine.
//
// Routes live under /api/auth (credential flows), /api/users/me (profile
// and sessions) and /api/admin. Failures are rendered as
//
//	{"code": "...", "message": "...", "timestamp": "...", "path": "..."}
//
// with the status chosen by [StatusFor]. Panics and 5xx failures are
// reported to Sentry when the process initialised a Sentry client.
package httpapi
