package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/transition"
)

// writeTransitionError maps transition errors to responses. Denials and
// unclassified errors are logged and answered with a fixed message.
func (s *Server) writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transition.ErrAccessDenied):
		observability.WithTraceContext(r.Context(), s.logger).
			WithError(err).
			WithField("path", r.URL.Path).
			Info("Request denied")
		httputil.WriteErrorCode(w, http.StatusForbidden, "access_denied", "access denied")
	case errors.Is(err, transition.ErrNotFound):
		httputil.WriteErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, transition.ErrValidation):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, transition.ErrConcurrencyConflict):
		httputil.WriteErrorCode(w, http.StatusConflict, "conflict", err.Error())
	default:
		observability.WithTraceContext(r.Context(), s.logger).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
