package vision

import "context"

// MockClassifier is a configurable Classifier for tests.
type MockClassifier struct {
	// ClassifyPhotoFn overrides ClassifyPhoto when set.
	ClassifyPhotoFn func(ctx context.Context, image []byte, mimeType string) (*Classification, error)

	// Calls counts ClassifyPhoto invocations.
	Calls int
}

// ClassifyPhoto implements the Classifier interface.
func (m *MockClassifier) ClassifyPhoto(ctx context.Context, image []byte, mimeType string) (*Classification, error) {
	m.Calls++
	if m.ClassifyPhotoFn != nil {
		return m.ClassifyPhotoFn(ctx, image, mimeType)
	}
	return &Classification{Approved: true, Reason: "clear storefront photo"}, nil
}

// Compile-time check that MockClassifier satisfies Classifier.
var _ Classifier = (*MockClassifier)(nil)
