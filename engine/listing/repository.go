package listing

import (
	"context"
	"errors"

	"github.com/cardmart/cardmart/engine/core"
)

// ErrNotFound is returned when a listing does not exist
var ErrNotFound = errors.New("listing not found")

// ErrNotActive is returned when a conditional sold-write finds the listing
// no longer active. This is a state conflict, not an internal failure.
var ErrNotActive = errors.New("listing is no longer active")

// Repository defines the read surface the transaction core has over
// storefront listings, plus the single conditional write it performs.
type Repository interface {
	// GetSnapshot reads the listing's current decision-time fields
	GetSnapshot(ctx context.Context, id core.ID) (*Snapshot, error)
	// Search returns active, agent-enabled listings matching the query
	Search(ctx context.Context, q *SearchQuery) ([]*Snapshot, error)
	// MarkSold flips status to sold only when the prior status is still
	// active, returning ErrNotActive when the guard fails
	MarkSold(ctx context.Context, id core.ID) error
}
