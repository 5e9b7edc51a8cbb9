package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-notify-engine/internal/domain"
)

// httpError maps the domain error taxonomy to a status code and envelope.
// Internal errors are logged and answered with a generic message unless debug is set.
func httpError(w http.ResponseWriter, err error, debug bool) {
	var ve *domain.ValidationError
	var ae *domain.AuthError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorEnvelope{Error: "validation failed", Details: ve.Fields})
	case errors.As(err, &ae):
		status := http.StatusUnauthorized
		if ae.Forbidden {
			status = http.StatusForbidden
		}
		writeError(w, status, ae.Reason)
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad request")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict, retry the request")
	default:
		slog.Error("request failed", "err", err)
		env := ErrorEnvelope{Error: "internal server error"}
		var se *domain.StorageError
		if errors.As(err, &se) {
			env.Details = "storage unavailable, retry later"
		}
		if debug {
			env.Details = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, env)
	}
}
