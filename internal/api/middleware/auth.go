package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/auth"
)

// TokenValidator checks an access token.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type authContextKey string

const (
	claimsKey     authContextKey = "claims"
	cookieAuthKey authContextKey = "cookieAuth"
)

// Authenticate accepts an access token from the Authorization header (API and
// mobile clients) or from the session cookie (web). Requests without either
// are rejected with 401.
func Authenticate(tokens TokenValidator, cookieName, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, fromCookie := "", false
			if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
				parsed, err := auth.TokenFromHeader(header)
				if err != nil {
					problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid authorization format", err, env)
					return
				}
				token = parsed
			} else if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
				token, fromCookie = cookie.Value, true
			}
			if token == "" {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing credentials", problem.ErrUnauthorized, env)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				title, challenge := "Invalid token", `Bearer error="invalid_token"`
				if errors.Is(err, auth.ErrExpiredToken) {
					title, challenge = "Token expired", `Bearer error="invalid_token", error_description="expired"`
				}
				w.Header().Set("WWW-Authenticate", challenge)
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, title, err, env)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, cookieAuthKey, fromCookie)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the authenticated caller, or nil.
func Claims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// UserID returns the authenticated caller's user ID.
func UserID(ctx context.Context) string {
	if claims := Claims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// CookieAuthenticated reports whether the caller authenticated with the session cookie.
func CookieAuthenticated(ctx context.Context) bool {
	fromCookie, _ := ctx.Value(cookieAuthKey).(bool)
	return fromCookie
}
