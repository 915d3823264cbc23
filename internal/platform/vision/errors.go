package vision

import "errors"

// Error definitions for the vision package.
var (
	// ErrInvalidConfig is returned when the classifier configuration is
	// incomplete.
	ErrInvalidConfig = errors.New("invalid vision configuration")

	// ErrEmptyImage is returned when an empty image is submitted for
	// classification.
	ErrEmptyImage = errors.New("image data cannot be empty")

	// ErrInvalidResponse is returned when the API responds with content
	// that cannot be interpreted as a verdict.
	ErrInvalidResponse = errors.New("invalid classification response")
)
