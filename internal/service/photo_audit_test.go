package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/engine"
	"github.com/nvasquez/dirbatch-api/internal/platform/blob"
	"github.com/nvasquez/dirbatch-api/internal/platform/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuditor(t *testing.T, listings ListingStore, classifier vision.Classifier, uploader blob.Uploader) *PhotoAuditor {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor, err := NewPhotoAuditor(listings, classifier, uploader, http.DefaultClient, logger)
	require.NoError(t, err)
	return auditor
}

func photoServer(t *testing.T, status int, contentType string, body []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func auditPayload(t *testing.T, listingID uuid.UUID, photoURL string) json.RawMessage {
	t.Helper()

	payload, err := json.Marshal(PhotoAuditPayload{ListingID: listingID, PhotoURL: photoURL})
	require.NoError(t, err)
	return payload
}

func TestPhotoAuditorCollect(t *testing.T) {
	t.Parallel()

	eligible := &domain.Listing{ID: uuid.New(), PhotoURL: "https://img.example.test/a.jpg", HeroStatus: domain.HeroStatusUnreviewed}
	noPhoto := &domain.Listing{ID: uuid.New(), HeroStatus: domain.HeroStatusUnreviewed}
	reviewed := &domain.Listing{ID: uuid.New(), PhotoURL: "https://img.example.test/b.jpg", HeroStatus: domain.HeroStatusApproved}
	listings := newMockListingStore(eligible, noPhoto, reviewed)

	auditor := testAuditor(t, listings, &vision.MockClassifier{}, nil)

	payloads, err := auditor.Collect(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var item PhotoAuditPayload
	require.NoError(t, json.Unmarshal(payloads[0], &item))
	assert.Equal(t, eligible.ID, item.ListingID)
	assert.Equal(t, "https://img.example.test/a.jpg", item.PhotoURL)

	// The snapshot marks candidates queued so an overlapping run skips them.
	assert.Equal(t, domain.HeroStatusQueued, listings.listing(eligible.ID).HeroStatus)

	again, err := auditor.Collect(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPhotoAuditorCollectNamePrefixFilter(t *testing.T) {
	t.Parallel()

	cafe := &domain.Listing{ID: uuid.New(), Name: "Cafe Lumen", PhotoURL: "https://img.example.test/cafe.jpg", HeroStatus: domain.HeroStatusUnreviewed}
	bakery := &domain.Listing{ID: uuid.New(), Name: "Bakery Nord", PhotoURL: "https://img.example.test/bakery.jpg", HeroStatus: domain.HeroStatusUnreviewed}
	listings := newMockListingStore(cafe, bakery)

	auditor := testAuditor(t, listings, &vision.MockClassifier{}, nil)

	payloads, err := auditor.Collect(context.Background(), 0, json.RawMessage(`{"name_prefix":"cafe"}`))
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var item PhotoAuditPayload
	require.NoError(t, json.Unmarshal(payloads[0], &item))
	assert.Equal(t, cafe.ID, item.ListingID)

	// Only the matched listing was queued; the rest of the backlog is
	// untouched.
	assert.Equal(t, domain.HeroStatusQueued, listings.listing(cafe.ID).HeroStatus)
	assert.Equal(t, domain.HeroStatusUnreviewed, listings.listing(bakery.ID).HeroStatus)
}

func TestPhotoAuditorCollectRejectsBadFilter(t *testing.T) {
	t.Parallel()

	auditor := testAuditor(t, newMockListingStore(), &vision.MockClassifier{}, nil)

	_, err := auditor.Collect(context.Background(), 0, json.RawMessage(`{"name_prefix":`))
	assert.ErrorIs(t, err, ErrInvalidFilter)

	// A misspelled key must not silently widen the run.
	_, err = auditor.Collect(context.Background(), 0, json.RawMessage(`{"name_prefx":"Cafe"}`))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestPhotoAuditorHandleApproves(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, http.StatusOK, "image/jpeg", []byte("jpegbytes"))
	listing := &domain.Listing{ID: uuid.New(), PhotoURL: srv.URL + "/a.jpg", HeroStatus: domain.HeroStatusQueued}
	listings := newMockListingStore(listing)
	uploader := &blob.MockUploader{}

	auditor := testAuditor(t, listings, &vision.MockClassifier{}, uploader)

	result, err := auditor.Handle(context.Background(), auditPayload(t, listing.ID, listing.PhotoURL))
	require.NoError(t, err)
	assert.Equal(t, "approved", result.Verdict)

	got := listings.listing(listing.ID)
	assert.Equal(t, domain.HeroStatusApproved, got.HeroStatus)
	require.Len(t, uploader.Uploaded, 1)
	assert.Contains(t, got.PhotoURL, uploader.Uploaded[0])
}

func TestPhotoAuditorHandleRejects(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, http.StatusOK, "image/png", []byte("pngbytes"))
	listing := &domain.Listing{ID: uuid.New(), PhotoURL: srv.URL + "/a.png", HeroStatus: domain.HeroStatusQueued}
	listings := newMockListingStore(listing)
	classifier := &vision.MockClassifier{
		ClassifyPhotoFn: func(ctx context.Context, image []byte, mimeType string) (*vision.Classification, error) {
			return &vision.Classification{Approved: false, Reason: "photo is a screenshot"}, nil
		},
	}

	auditor := testAuditor(t, listings, classifier, &blob.MockUploader{})

	result, err := auditor.Handle(context.Background(), auditPayload(t, listing.ID, listing.PhotoURL))
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Verdict)
	assert.Equal(t, "photo is a screenshot", result.Reason)

	got := listings.listing(listing.ID)
	assert.Equal(t, domain.HeroStatusRejected, got.HeroStatus)
	assert.Equal(t, "photo is a screenshot", got.HeroNote)
}

func TestPhotoAuditorHandleBadPayload(t *testing.T) {
	t.Parallel()

	auditor := testAuditor(t, newMockListingStore(), &vision.MockClassifier{}, nil)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not json at all"},
		{"missing listing id", `{"photo_url":"https://img.example.test/a.jpg"}`},
		{"missing photo url", `{"listing_id":"` + uuid.NewString() + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := auditor.Handle(context.Background(), json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.False(t, engine.IsTransient(err))
		})
	}
}

func TestPhotoAuditorFetchClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		contentType   string
		body          []byte
		wantTransient bool
	}{
		{"not found is permanent", http.StatusNotFound, "text/html", nil, false},
		{"gone is permanent", http.StatusGone, "text/html", nil, false},
		{"rate limit is transient", http.StatusTooManyRequests, "text/html", nil, true},
		{"server error is transient", http.StatusBadGateway, "text/html", nil, true},
		{"non-image is permanent", http.StatusOK, "text/html", []byte("<html>"), false},
		{"empty body is permanent", http.StatusOK, "image/jpeg", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := photoServer(t, tt.status, tt.contentType, tt.body)
			listing := &domain.Listing{ID: uuid.New(), PhotoURL: srv.URL + "/a.jpg"}
			auditor := testAuditor(t, newMockListingStore(listing), &vision.MockClassifier{}, nil)

			_, err := auditor.Handle(context.Background(), auditPayload(t, listing.ID, listing.PhotoURL))
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, engine.IsTransient(err))
		})
	}
}

func TestPhotoAuditorHandleClassifierErrorPassesThrough(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, http.StatusOK, "image/jpeg", []byte("jpegbytes"))
	listing := &domain.Listing{ID: uuid.New(), PhotoURL: srv.URL + "/a.jpg"}
	overloaded := engine.Transient(errors.New("vision API overloaded"))
	classifier := &vision.MockClassifier{
		ClassifyPhotoFn: func(ctx context.Context, image []byte, mimeType string) (*vision.Classification, error) {
			return nil, overloaded
		},
	}

	auditor := testAuditor(t, newMockListingStore(listing), classifier, nil)

	_, err := auditor.Handle(context.Background(), auditPayload(t, listing.ID, listing.PhotoURL))
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestPhotoAuditorUploadFailureIsTransient(t *testing.T) {
	t.Parallel()

	srv := photoServer(t, http.StatusOK, "image/jpeg", []byte("jpegbytes"))
	listing := &domain.Listing{ID: uuid.New(), PhotoURL: srv.URL + "/a.jpg"}
	uploader := &blob.MockUploader{
		UploadFn: func(ctx context.Context, key string, data []byte, contentType string) (string, error) {
			return "", errors.New("slow down")
		},
	}

	auditor := testAuditor(t, newMockListingStore(listing), &vision.MockClassifier{}, uploader)

	_, err := auditor.Handle(context.Background(), auditPayload(t, listing.ID, listing.PhotoURL))
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestPhotoObjectKey(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t,
		"listings/6ba7b810-9dad-11d1-80b4-00c04fd430c8/hero.png",
		photoObjectKey(id, "https://img.example.test/shot.png", "image/jpeg"))
	assert.Equal(t,
		"listings/6ba7b810-9dad-11d1-80b4-00c04fd430c8/hero.jpg",
		photoObjectKey(id, "https://img.example.test/shot.jpg?v=2", "image/png"))
	assert.Equal(t,
		"listings/6ba7b810-9dad-11d1-80b4-00c04fd430c8/hero.webp",
		photoObjectKey(id, "https://img.example.test/photo", "image/webp"))
}
