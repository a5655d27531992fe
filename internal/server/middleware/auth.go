package middleware

import (
	"crypto/subtle"
	"net/http"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
)

// BasicAuth guards a route group with HTTP basic auth. Comparison is
// constant-time so credential length and prefix do not leak.
func BasicAuth(user, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotPass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) != 1 ||
				subtle.ConstantTimeCompare([]byte(gotPass), []byte(password)) != 1 {
				apperrors.Unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
