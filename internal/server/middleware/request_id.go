// Package middleware holds the HTTP middleware chain for the serve
// command: request ids, panic recovery, request logging, and optional
// basic auth. Handlers read the request id from the request context.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
)

// RequestIDHeader carries the request id on both request and response.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an id: the client-provided header when
// present, otherwise a fresh UUID. The id is stored in the request
// context and echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := apperrors.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(r *http.Request) string {
	return apperrors.RequestIDFromContext(r.Context())
}
