package api

import (
	"errors"
	"net/http"

	"github.com/nvasquez/dirbatch-api/internal/service"
	"github.com/nvasquez/dirbatch-api/internal/store"
)

// MapErrorToStatusCode maps service and store errors to HTTP status codes
// without leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrUnknownJobKind),
		errors.Is(err, service.ErrInvalidFilter):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrNoEligibleItems):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrJobAlreadyFinished):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error. Anything unrecognized collapses to a generic message.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Job not found"

	case errors.Is(err, service.ErrUnknownJobKind):
		return "Unknown job kind"

	case errors.Is(err, service.ErrInvalidFilter):
		return "Invalid job filter"

	case errors.Is(err, service.ErrNoEligibleItems):
		return "No eligible items for this job kind"

	case errors.Is(err, service.ErrJobAlreadyFinished):
		return "Job already finished"

	default:
		return "An unexpected error occurred"
	}
}
