package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authsession"
)

// RequireRole admits callers whose account holds role. It must run after
// Authenticate. Roles are read from the account store on every request, so
// a role change applies without waiting for token expiry.
func RequireRole(engine *authsession.Engine, role string, onError ErrorWriter) Stage {
	onError = orPlain(onError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := authsession.AuthResultFromContext(r.Context())
			if !ok {
				onError(w, r, authsession.ErrTokenInvalid)
				return
			}

			account, err := engine.Account(r.Context(), res.AccountID)
			switch {
			case errors.Is(err, authsession.ErrResourceNotFound):
				onError(w, r, authsession.ErrTokenInvalid)
				return
			case err != nil:
				onError(w, r, err)
				return
			case account.Disabled || !account.HasRole(role):
				onError(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
