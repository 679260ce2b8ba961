package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authsession"
)

// RateLimit charges one request of class against the caller's bucket,
// keyed by IP and User-Agent. CORS preflight requests are not charged.
func RateLimit(engine *authsession.Engine, class authsession.RateClass, trustProxy bool, onError ErrorWriter) Stage {
	onError = orPlain(onError)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			client := authsession.ClientIdentity(ClientIP(r, trustProxy), r.UserAgent())
			d, err := engine.CheckRate(r.Context(), class, client)
			if d.Limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetSeconds(), 10))
			}
			if err != nil {
				var rl *authsession.RateLimitError
				if errors.As(err, &rl) {
					w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds(), 10))
				}
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
