package blob

import (
	"context"
	"fmt"
)

// MockUploader is a configurable Uploader for tests.
type MockUploader struct {
	// UploadFn overrides Upload when set.
	UploadFn func(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Uploaded records the keys passed to Upload.
	Uploaded []string
}

// Upload implements the Uploader interface.
func (m *MockUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.Uploaded = append(m.Uploaded, key)
	if m.UploadFn != nil {
		return m.UploadFn(ctx, key, data, contentType)
	}
	return fmt.Sprintf("https://cdn.example.test/%s", key), nil
}

// Compile-time check that MockUploader satisfies Uploader.
var _ Uploader = (*MockUploader)(nil)
