package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/nvasquez/dirbatch-api/internal/service"
	"github.com/nvasquez/dirbatch-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"job not found", service.ErrJobNotFound, http.StatusNotFound},
		{"store not found", store.ErrJobNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", service.ErrJobNotFound), http.StatusNotFound},
		{"unknown kind", service.ErrUnknownJobKind, http.StatusBadRequest},
		{"invalid filter", fmt.Errorf("%w: bad json", service.ErrInvalidFilter), http.StatusBadRequest},
		{"no eligible items", service.ErrNoEligibleItems, http.StatusUnprocessableEntity},
		{"already finished", service.ErrJobAlreadyFinished, http.StatusConflict},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Job not found", GetSafeErrorMessage(service.ErrJobNotFound))
	assert.Equal(t, "Unknown job kind", GetSafeErrorMessage(service.ErrUnknownJobKind))
	assert.Equal(t, "Invalid job filter", GetSafeErrorMessage(service.ErrInvalidFilter))
	assert.Equal(t, "No eligible items for this job kind", GetSafeErrorMessage(service.ErrNoEligibleItems))
	assert.Equal(t, "Job already finished", GetSafeErrorMessage(service.ErrJobAlreadyFinished))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))

	// Raw error details never leak into the safe message.
	leaky := errors.New("password=hunter2")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(leaky))
}
