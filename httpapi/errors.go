package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

var errBadRequest = errors.New("malformed request body")

type mapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: ErrStoreUnavailable wraps ErrInternal.
var mappings = []mapping{
	{authsession.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{authsession.ErrTokenRevoked, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked"},
	{authsession.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired"},
	{authsession.ErrTokenInvalid, http.StatusUnauthorized, "TOKEN_INVALID", "Token is invalid"},
	{authsession.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "Too many failed attempts, account temporarily locked"},
	{authsession.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests, try again later"},
	{authsession.ErrResetTokenInvalid, http.StatusBadRequest, "RESET_TOKEN_INVALID", "Reset token is invalid or expired"},
	{authsession.ErrPasswordPolicy, http.StatusBadRequest, "PASSWORD_POLICY", "Password does not meet the policy"},
	{authsession.ErrPasswordReuse, http.StatusBadRequest, "PASSWORD_REUSE", "New password must differ from the current one"},
	{authsession.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR", "Request is invalid"},
	{errBadRequest, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed request body"},
	{authsession.ErrEmailAlreadyExists, http.StatusConflict, "EMAIL_ALREADY_EXISTS", "Email already registered"},
	{authsession.ErrResourceNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"},
	{middleware.ErrForbidden, http.StatusForbidden, "ACCESS_DENIED", "Access denied"},
	{authsession.ErrStoreUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable"},
}

// StatusFor maps an Engine error to its HTTP status.
func StatusFor(err error) int {
	status, _, _ := classify(err)
	return status
}

func classify(err error) (int, string, string) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred"
}

// writeError renders err. Messages are fixed per code except for input
// and policy errors, whose detail is safe to echo.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)

	var pv *authsession.PolicyViolationError
	var locked *authsession.LockedError
	var rl *authsession.RateLimitError
	switch {
	case errors.As(err, &pv):
		message = message + ": " + strings.Join(pv.Violations(), "; ")
	case errors.Is(err, authsession.ErrInvalidInput):
		message = err.Error()
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(locked.Remaining.Seconds())), 10))
	case errors.As(err, &rl):
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds(), 10))
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "httpapi: unhandled error", "path", r.URL.Path, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	}

	s.writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		Timestamp: s.now().UTC(),
		Path:      r.URL.Path,
	})
}
