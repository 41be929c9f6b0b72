package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/internal/console"
	"github.com/kiranshivaraju/cronbat/internal/logview"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
)

// writeError maps console and scheduler errors to the API's error codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stale *console.StaleWriteError
	var transport *schedapi.TransportError

	switch {
	case errors.As(err, &stale):
		response.Error(w, http.StatusConflict, "STALE_WRITE",
			"The scheduler rejected the change; the job was reloaded", map[string]any{
				"op":        stale.Op,
				"job_id":    stale.JobID,
				"refetched": stale.Refetched,
				"cause":     stale.Err.Error(),
			})
	case errors.Is(err, console.ErrJobNotFound), errors.Is(err, schedapi.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, logview.ErrUnknownExecution):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, schedapi.ErrUnreachable):
		response.Error(w, http.StatusBadGateway, "SCHEDULER_UNAVAILABLE",
			"The scheduler cannot be reached", nil)
	case errors.Is(err, schedapi.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "SCHEDULER_UNAVAILABLE",
			"The scheduler did not answer in time", nil)
	case errors.As(err, &transport) && isClientStatus(transport.Status):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", transport.Err.Error(), nil)
	case errors.Is(err, schedapi.ErrRequestFailed):
		response.Error(w, http.StatusBadGateway, "SCHEDULER_ERROR", err.Error(), nil)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func isClientStatus(status int) bool {
	return status == http.StatusBadRequest ||
		status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity
}

func invalid(w http.ResponseWriter, message string) {
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, nil)
}
