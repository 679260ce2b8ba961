// Package security summarizes the security posture of an engine
// configuration and flags settings that weaken it.
package security
