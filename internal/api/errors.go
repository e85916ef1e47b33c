package api

import (
	"errors"
	"net/http"

	"chartbot/internal/service"
	"chartbot/internal/state"
	"chartbot/internal/tabular"
)

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tabular.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrNoDataset),
		errors.Is(err, state.ErrNoQuery),
		errors.Is(err, state.ErrStaleRun):
		return http.StatusConflict
	case errors.Is(err, service.ErrKeyColumnAxis),
		errors.Is(err, service.ErrLowConfidence):
		return http.StatusUnprocessableEntity
	case service.IsInvariantViolation(err):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrPrediction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
