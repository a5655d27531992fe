// Package errors defines the JSON error envelope written by every HTTP
// handler: {"error":{"code","message","request_id","details"}}. Code
// strings are a stable contract; clients dispatch on them, not on the
// message text.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Stable envelope codes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeUnauthorized       = "UNAUTHORIZED"
)

// HTTPError is the envelope payload.
type HTTPError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPErrorResponse is the wire shape of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type requestIDKey struct{}

// ContextWithRequestID stores the request id for error writers downstream.
// The request-id middleware calls this once per request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "" when the middleware
// did not run.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WriteError writes the envelope with the given status and code. The
// request id is taken from the request context when present.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteErrorDetails(w, r, status, code, message, nil)
}

// WriteErrorDetails writes the envelope with extra machine-readable
// context, such as per-check health results.
func WriteErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := HTTPErrorResponse{Error: HTTPError{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if r != nil {
		resp.Error.RequestID = RequestIDFromContext(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// NotFound writes a 404 envelope.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "resource not found"
	}
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

// MethodNotAllowed writes a 405 envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// InvalidArgument writes a 400 envelope.
func InvalidArgument(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument, message)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
}

// ServiceUnavailable writes a 503 envelope.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string, details map[string]interface{}) {
	WriteErrorDetails(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, message, details)
}

// RespondWithError maps err onto the envelope. Unrecognized errors become
// 500 INTERNAL_ERROR with a generic message; raw error text never reaches
// the client.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, "request cancelled")
		return
	}
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
}
