package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/engine"
	"github.com/nvasquez/dirbatch-api/internal/platform/blob"
	"github.com/nvasquez/dirbatch-api/internal/platform/vision"
)

// KindPhotoAudit is the job kind for hero-image photo audits.
const KindPhotoAudit = "photo_audit"

// maxPhotoBytes caps how much image data one task will download.
const maxPhotoBytes = 10 << 20

// defaultAuditBatchLimit bounds a photo-audit run when the caller gives no
// limit.
const defaultAuditBatchLimit = 500

// PhotoAuditPayload is the per-task work item for a photo audit: which
// listing, and the photo URL as it was when the job snapshotted it.
type PhotoAuditPayload struct {
	ListingID uuid.UUID `json:"listing_id"`
	PhotoURL  string    `json:"photo_url"`
}

// PhotoAuditFilter narrows a photo-audit run to a slice of the directory.
// It is the photo_audit interpretation of the opaque job filter.
type PhotoAuditFilter struct {
	// NamePrefix limits the run to listings whose name starts with the
	// prefix, matched case-insensitively.
	NamePrefix string `json:"name_prefix"`
}

// ListingStore is the slice of listing persistence the photo audit needs.
type ListingStore interface {
	CollectPhotoAuditCandidates(ctx context.Context, limit int, namePrefix string) ([]*domain.Listing, error)
	BulkSetHeroStatus(ctx context.Context, listingIDs []uuid.UUID, status string) (int64, error)
	SetPhotoURL(ctx context.Context, listingID uuid.UUID, photoURL string) error
	SetHeroStatus(ctx context.Context, listingID uuid.UUID, status, note string) error
}

// PhotoAuditor audits listing photos one task at a time: fetch the image,
// classify it, record the verdict, and rehost approved photos into the
// product's own bucket. Its Handle method is the engine handler for
// KindPhotoAudit; its Collect method is the job's source.
type PhotoAuditor struct {
	listings   ListingStore
	classifier vision.Classifier
	uploader   blob.Uploader
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPhotoAuditor creates a photo auditor. The uploader may be nil, in which
// case approved photos keep their original URL instead of being rehosted.
func NewPhotoAuditor(
	listings ListingStore,
	classifier vision.Classifier,
	uploader blob.Uploader,
	httpClient *http.Client,
	logger *slog.Logger,
) (*PhotoAuditor, error) {
	if listings == nil {
		return nil, fmt.Errorf("listings store cannot be nil")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PhotoAuditor{
		listings:   listings,
		classifier: classifier,
		uploader:   uploader,
		httpClient: httpClient,
		logger:     logger.With("component", "photo_auditor"),
	}, nil
}

// Collect implements the Source interface. It snapshots unreviewed listings
// with a photo and marks them queued in one statement, so an overlapping run
// cannot audit the same listing twice.
func (a *PhotoAuditor) Collect(ctx context.Context, limit int, filter json.RawMessage) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = defaultAuditBatchLimit
	}

	// Unknown filter fields are rejected rather than ignored: a misspelled
	// key would otherwise silently widen the run to the whole backlog.
	var parsed PhotoAuditFilter
	if len(filter) > 0 {
		dec := json.NewDecoder(bytes.NewReader(filter))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}

	listings, err := a.listings.CollectPhotoAuditCandidates(ctx, limit, parsed.NamePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to collect audit candidates: %w", err)
	}
	if len(listings) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(listings))
	payloads := make([]json.RawMessage, 0, len(listings))
	for _, listing := range listings {
		payload, err := json.Marshal(PhotoAuditPayload{
			ListingID: listing.ID,
			PhotoURL:  listing.PhotoURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloads = append(payloads, payload)
		ids = append(ids, listing.ID)
	}

	if _, err := a.listings.BulkSetHeroStatus(ctx, ids, domain.HeroStatusQueued); err != nil {
		return nil, fmt.Errorf("failed to mark candidates queued: %w", err)
	}
	return payloads, nil
}

// Handle implements the engine handler for one photo-audit task. Bad
// payloads and unusable photos fail permanently; upstream overload comes
// back transient so the engine's backoff applies.
func (a *PhotoAuditor) Handle(ctx context.Context, payload json.RawMessage) (engine.Result, error) {
	var item PhotoAuditPayload
	if err := json.Unmarshal(payload, &item); err != nil {
		return engine.Result{}, fmt.Errorf("invalid photo audit payload: %w", err)
	}
	if item.ListingID == uuid.Nil {
		return engine.Result{}, fmt.Errorf("invalid photo audit payload: missing listing_id")
	}
	if item.PhotoURL == "" {
		return engine.Result{}, fmt.Errorf("invalid photo audit payload: missing photo_url")
	}

	image, contentType, err := a.fetchPhoto(ctx, item.PhotoURL)
	if err != nil {
		return engine.Result{}, err
	}

	classification, err := a.classifier.ClassifyPhoto(ctx, image, contentType)
	if err != nil {
		return engine.Result{}, err
	}

	if !classification.Approved {
		if err := a.listings.SetHeroStatus(ctx, item.ListingID, domain.HeroStatusRejected, classification.Reason); err != nil {
			return engine.Result{}, fmt.Errorf("failed to record rejection: %w", err)
		}
		return engine.Result{Verdict: "rejected", Reason: classification.Reason}, nil
	}

	if a.uploader != nil {
		key := photoObjectKey(item.ListingID, item.PhotoURL, contentType)
		rehosted, err := a.uploader.Upload(ctx, key, image, contentType)
		if err != nil {
			// Object stores throttle and blip like any upstream.
			return engine.Result{}, engine.Transient(fmt.Errorf("failed to rehost photo: %w", err))
		}
		if err := a.listings.SetPhotoURL(ctx, item.ListingID, rehosted); err != nil {
			return engine.Result{}, fmt.Errorf("failed to update photo URL: %w", err)
		}
	}

	if err := a.listings.SetHeroStatus(ctx, item.ListingID, domain.HeroStatusApproved, classification.Reason); err != nil {
		return engine.Result{}, fmt.Errorf("failed to record approval: %w", err)
	}
	return engine.Result{Verdict: "approved", Reason: classification.Reason}, nil
}

// fetchPhoto downloads the listing photo. Missing or non-image content is a
// permanent failure; rate limiting and server errors are transient.
func (a *PhotoAuditor) fetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid photo URL %q: %w", photoURL, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", engine.Transient(fmt.Errorf("photo fetch failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Proceed below.
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", engine.Transient(fmt.Errorf("photo host returned status %d", resp.StatusCode))
	default:
		return nil, "", fmt.Errorf("photo unavailable: host returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unsupported content type %q", contentType)
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, "", engine.Transient(fmt.Errorf("photo read failed: %w", err))
	}
	if len(image) == 0 {
		return nil, "", fmt.Errorf("photo body is empty")
	}
	if len(image) > maxPhotoBytes {
		return nil, "", fmt.Errorf("photo exceeds %d byte limit", maxPhotoBytes)
	}
	return image, contentType, nil
}

// photoObjectKey builds the bucket key for a rehosted photo. The extension
// comes from the source URL when it has one, otherwise from the content type.
func photoObjectKey(listingID uuid.UUID, photoURL, contentType string) string {
	ext := path.Ext(photoURL)
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	if ext == "" {
		switch contentType {
		case "image/png":
			ext = ".png"
		case "image/webp":
			ext = ".webp"
		case "image/gif":
			ext = ".gif"
		default:
			ext = ".jpg"
		}
	}
	return fmt.Sprintf("listings/%s/hero%s", listingID, ext)
}

// Compile-time check that PhotoAuditor can source its own jobs.
var _ Source = (*PhotoAuditor)(nil)
