package middleware

import (
	"net/http"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/gorilla/csrf"
)

// CSRFHeader carries the token on responses and is expected on unsafe requests.
const CSRFHeader = "X-CSRF-Token"

// CSRFProtection guards cookie-authenticated requests with gorilla/csrf's
// double-submit token. Bearer-token requests are not cookie-bound and pass
// through. It must run after Authenticate. Every protected response carries a
// fresh token in X-CSRF-Token for the web client to echo back.
func CSRFProtection(authKey []byte, secure bool, trustedOrigins []string, env string) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.TrustedOrigins(trustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "CSRF token validation failed", csrf.FailureReason(r), env)
		})),
	)

	return func(next http.Handler) http.Handler {
		guarded := protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CSRFHeader, csrf.Token(r))
			next.ServeHTTP(w, r)
		}))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CookieAuthenticated(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			guarded.ServeHTTP(w, r)
		})
	}
}
