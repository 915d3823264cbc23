package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
)

// mockListingStore is an in-memory ListingStore for tests.
type mockListingStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*domain.Listing

	collectErr error
	updateErr  error
}

func newMockListingStore(listings ...*domain.Listing) *mockListingStore {
	m := &mockListingStore{listings: make(map[uuid.UUID]*domain.Listing)}
	for _, l := range listings {
		m.listings[l.ID] = l
	}
	return m
}

func (m *mockListingStore) CollectPhotoAuditCandidates(ctx context.Context, limit int, namePrefix string) ([]*domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collectErr != nil {
		return nil, m.collectErr
	}

	prefix := strings.ToLower(namePrefix)
	var out []*domain.Listing
	for _, l := range m.listings {
		if l.PhotoURL == "" || l.HeroStatus != domain.HeroStatusUnreviewed {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(l.Name), prefix) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockListingStore) BulkSetHeroStatus(ctx context.Context, listingIDs []uuid.UUID, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}

	var updated int64
	for _, id := range listingIDs {
		if l, ok := m.listings[id]; ok {
			l.HeroStatus = status
			updated++
		}
	}
	return updated, nil
}

func (m *mockListingStore) SetPhotoURL(ctx context.Context, listingID uuid.UUID, photoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if l, ok := m.listings[listingID]; ok {
		l.PhotoURL = photoURL
	}
	return nil
}

func (m *mockListingStore) SetHeroStatus(ctx context.Context, listingID uuid.UUID, status, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if l, ok := m.listings[listingID]; ok {
		l.HeroStatus = status
		l.HeroNote = note
	}
	return nil
}

func (m *mockListingStore) listing(id uuid.UUID) *domain.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id]
}
