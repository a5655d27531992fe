package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
)

// httpErrorResponder lets tests intercept handler error writes. The
// default forwards to the shared envelope writer.
var httpErrorResponder = defaultErrorResponder

func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// SetHTTPErrorResponder replaces the error responder. Passing nil
// restores the default.
func SetHTTPErrorResponder(f func(http.ResponseWriter, *http.Request, error)) {
	if f == nil {
		httpErrorResponder = defaultErrorResponder
		return
	}
	httpErrorResponder = f
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultErrorResponder
}

// respondWithError routes handler errors through the current responder.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
