package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/middleware"
)

const maxJSONBodyBytes = 1 << 16

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// Metrics is mounted at GET /metrics when non-nil.
	Metrics http.Handler
	// Health backs GET /healthz; nil reports healthy.
	Health func(context.Context) error
	// AdminRole gates /api/admin routes. Defaults to "ADMIN".
	AdminRole string
	Now       func() time.Time
}

// Server routes HTTP requests to an Engine.
type Server struct {
	engine *authsession.Engine
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	mux    *http.ServeMux
}

// New builds a Server with every route registered.
func New(engine *authsession.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AdminRole == "" {
		opts.AdminRole = "ADMIN"
	}
	s := &Server{
		engine: engine,
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Now,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	limited := func(class authsession.RateClass, h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, middleware.RateLimit(s.engine, class, s.opts.TrustProxy, s.writeError))
	}
	authed := func(h http.HandlerFunc, extra ...middleware.Stage) http.Handler {
		stages := append([]middleware.Stage{middleware.Authenticate(s.engine, s.writeError)}, extra...)
		return middleware.Chain(h, stages...)
	}

	s.mux.Handle("POST /api/auth/register", limited(authsession.RateRegister, s.register))
	s.mux.Handle("POST /api/auth/login", limited(authsession.RateLogin, s.login))
	s.mux.Handle("POST /api/auth/refresh", limited(authsession.RateRefresh, s.refresh))
	s.mux.HandleFunc("POST /api/auth/logout", s.logout)
	s.mux.Handle("POST /api/auth/logout-all", authed(s.logoutAll))
	s.mux.Handle("POST /api/auth/change-password", middleware.Chain(http.HandlerFunc(s.changePassword),
		middleware.RateLimit(s.engine, authsession.RateChangePassword, s.opts.TrustProxy, s.writeError),
		middleware.Authenticate(s.engine, s.writeError),
	))
	s.mux.Handle("POST /api/auth/forgot-password", limited(authsession.RateForgotPassword, s.forgotPassword))
	s.mux.Handle("POST /api/auth/reset-password", limited(authsession.RateResetPassword, s.resetPassword))

	s.mux.Handle("GET /api/users/me", authed(s.me))
	s.mux.Handle("GET /api/users/me/sessions", authed(s.listSessions))
	s.mux.Handle("DELETE /api/users/me/sessions/{id}", authed(s.revokeSession))

	s.mux.Handle("GET /api/admin/ping", authed(s.adminPing, middleware.RequireRole(s.engine, s.opts.AdminRole, s.writeError)))

	s.mux.HandleFunc("GET /healthz", s.healthz)
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// Handler returns the root handler: panic recovery, then client info, then
// the routes.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux, s.recoverer, middleware.ClientInfo(s.opts.TrustProxy))
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.CurrentHub().Clone()
		ctx := sentry.SetHubOnContext(r.Context(), hub)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(r)
					scope.SetExtra("stack", string(debug.Stack()))
					hub.RecoverWithContext(ctx, rec)
				})
				s.logger.ErrorContext(ctx, "httpapi: panic recovered", "path", r.URL.Path, "method", r.Method, "panic", rec)
				s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Code:      "INTERNAL_SERVER_ERROR",
					Message:   "An unexpected error occurred",
					Timestamp: s.now().UTC(),
					Path:      r.URL.Path,
				})
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "httpapi: health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("httpapi: encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}
