package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/store"
)

// ListingStore gives the batch handlers their narrow window onto the
// product's listings table: candidate collection when a job is created and
// per-listing writes as items are processed. Every operation is a single
// statement, so it works against a pool or an enclosing transaction alike.
type ListingStore struct {
	db store.DBTX
}

// NewListingStore creates a new ListingStore over the given database handle
// or transaction.
func NewListingStore(db store.DBTX) *ListingStore {
	return &ListingStore{
		db: db,
	}
}

const listingColumns = `id, name, photo_url, hero_status, hero_note, created_at, updated_at`

// GetListing retrieves a listing by ID.
func (s *ListingStore) GetListing(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	listing, err := scanListing(s.db.QueryRowContext(ctx, query, listingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

// CollectPhotoAuditCandidates snapshots the listings eligible for a photo
// audit run: a photo is present and its hero status has not been reviewed.
// A non-empty namePrefix narrows the run to listings whose name starts with
// it, case-insensitively. Oldest-updated first, so repeated runs rotate
// through the backlog.
func (s *ListingStore) CollectPhotoAuditCandidates(ctx context.Context, limit int, namePrefix string) ([]*domain.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE photo_url <> '' AND hero_status = $1
			AND ($2 = '' OR name ILIKE $2 || '%')
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, domain.HeroStatusUnreviewed, namePrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to collect audit candidates: %w", err)
	}
	defer rows.Close()

	var listings []*domain.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listing rows: %w", err)
	}
	return listings, nil
}

// SetPhotoURL replaces a listing's photo with the rehosted copy.
func (s *ListingStore) SetPhotoURL(ctx context.Context, listingID uuid.UUID, photoURL string) error {
	query := `
		UPDATE listings
		SET photo_url = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, photoURL, time.Now().UTC(), listingID)
	if err != nil {
		return fmt.Errorf("failed to set photo URL: %w", err)
	}
	return requireListingUpdated(result)
}

// SetHeroStatus records a single listing's audit verdict and note.
func (s *ListingStore) SetHeroStatus(ctx context.Context, listingID uuid.UUID, status, note string) error {
	query := `
		UPDATE listings
		SET hero_status = $1, hero_note = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, status, note, time.Now().UTC(), listingID)
	if err != nil {
		return fmt.Errorf("failed to set hero status: %w", err)
	}
	return requireListingUpdated(result)
}

// BulkSetHeroStatus applies one audit verdict to many listings in a single
// statement. Used by handlers that resolve a whole batch at once.
func (s *ListingStore) BulkSetHeroStatus(ctx context.Context, listingIDs []uuid.UUID, status string) (int64, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(listingIDs))
	for i, id := range listingIDs {
		ids[i] = id.String()
	}

	query := `
		UPDATE listings
		SET hero_status = $1, updated_at = $2
		WHERE id = ANY($3::uuid[])
	`
	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), ids)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk set hero status: %w", err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return updated, nil
}

func requireListingUpdated(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrListingNotFound
	}
	return nil
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var listing domain.Listing
	var heroNote sql.NullString

	err := row.Scan(
		&listing.ID,
		&listing.Name,
		&listing.PhotoURL,
		&listing.HeroStatus,
		&heroNote,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	listing.HeroNote = heroNote.String
	return &listing, nil
}
