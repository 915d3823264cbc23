package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrJobNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(ErrListingNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("wrapped: %w", ErrJobNotFound)))

	assert.False(t, IsNotFoundError(ErrJobFinished))
	assert.False(t, IsNotFoundError(errors.New("some other error")))
	assert.False(t, IsNotFoundError(nil))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	underlying := errors.New("connection refused")
	err := NewStoreError("task", "claim", "claiming batch", underlying)

	assert.Contains(t, err.Error(), "claim operation on task failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, underlying))

	noCause := NewStoreError("job", "update", "no rows affected", nil)
	assert.Equal(t, "update operation on job failed: no rows affected", noCause.Error())
	assert.Nil(t, errors.Unwrap(noCause))
}
