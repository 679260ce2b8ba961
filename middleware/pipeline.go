package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authsession"
)

// Stage wraps a handler with one pipeline step.
type Stage func(http.Handler) http.Handler

// ErrorWriter renders a rejection. Stages call it with taxonomy errors
// from the authsession package or with ErrForbidden.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// ErrForbidden rejects an authenticated caller that lacks a required role.
var ErrForbidden = errors.New("forbidden")

// Chain applies stages around h; stages[0] sees the request first.
func Chain(h http.Handler, stages ...Stage) http.Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] != nil {
			h = stages[i](h)
		}
	}
	return h
}

// PlainErrorWriter answers with a text body and a status derived from the
// error. It is used when a stage is given a nil ErrorWriter.
func PlainErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, authsession.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, authsession.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, authsession.ErrInternal), errors.Is(err, authsession.ErrEngineNotReady):
		status = http.StatusInternalServerError
	}
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

func orPlain(fn ErrorWriter) ErrorWriter {
	if fn == nil {
		return PlainErrorWriter
	}
	return fn
}

// ClientInfo copies the caller's address, User-Agent and X-Device-Name
// header onto the request context. With trustProxy set, the first
// X-Forwarded-For entry wins over RemoteAddr.
func ClientInfo(trustProxy bool) Stage {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authsession.WithClientIP(r.Context(), ClientIP(r, trustProxy))
			ctx = authsession.WithUserAgent(ctx, r.UserAgent())
			if name := strings.TrimSpace(r.Header.Get("X-Device-Name")); name != "" {
				ctx = authsession.WithDeviceName(ctx, name)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the request's client address without the port.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
