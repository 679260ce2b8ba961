package authsession

import (
	"context"
	"strings"

	"github.com/MrEthical07/authsession/session"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceNameContextKey struct{}
type authResultContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// new refresh sessions and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceName attaches a client-chosen device label to ctx.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameContextKey{}, name)
}

// WithAuthResult stores a validated access token on ctx. The middleware
// Authenticate stage sets it.
func WithAuthResult(ctx context.Context, result *AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, result)
}

// AuthResultFromContext returns the result stored by WithAuthResult.
func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	if ctx == nil {
		return nil, false
	}
	result, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return result, ok && result != nil
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func clientIPFromContext(ctx context.Context) string {
	return stringFromContext(ctx, clientIPContextKey{})
}

// deviceFromContext truncates user-supplied fields to the column widths of
// the durable stores.
func deviceFromContext(ctx context.Context) session.DeviceMeta {
	return session.DeviceMeta{
		Name:      truncate(stringFromContext(ctx, deviceNameContextKey{}), 100),
		IP:        truncate(clientIPFromContext(ctx), 45),
		UserAgent: truncate(stringFromContext(ctx, userAgentContextKey{}), 512),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
