package domain

import (
	"time"

	"github.com/google/uuid"
)

// Hero image audit states for a listing photo.
const (
	HeroStatusUnreviewed = "unreviewed"
	HeroStatusQueued     = "queued"
	HeroStatusApproved   = "approved"
	HeroStatusRejected   = "rejected"
)

// Listing is the slice of the directory's listing row the batch features
// read and write: the photo under audit and its audit state. The full
// listing schema lives with the product, not here.
type Listing struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PhotoURL   string    `json:"photo_url"`
	HeroStatus string    `json:"hero_status"`
	HeroNote   string    `json:"hero_note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
