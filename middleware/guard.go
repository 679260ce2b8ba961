package middleware

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authsession"
)

// Authenticate requires a valid bearer access token. On success the
// *authsession.AuthResult is available through
// authsession.AuthResultFromContext.
func Authenticate(engine *authsession.Engine, onError ErrorWriter) Stage {
	onError = orPlain(onError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				onError(w, r, authsession.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, authsession.ErrTokenInvalid)
				return
			}

			res, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := authsession.WithAuthResult(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-sensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
