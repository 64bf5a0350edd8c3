package apikey

import (
	"context"

	"github.com/cardmart/cardmart/engine/core"
)

// Repository defines the data access surface for API keys.
type Repository interface {
	// Create persists a new API key
	Create(ctx context.Context, key *APIKey) error
	// GetByID retrieves an API key by its ID
	GetByID(ctx context.Context, id core.ID) (*APIKey, error)
	// GetByFingerprint retrieves a key by its sha256 lookup digest
	GetByFingerprint(ctx context.Context, fingerprint []byte) (*APIKey, error)
	// ListByUser retrieves all keys owned by a user
	ListByUser(ctx context.Context, userID core.ID) ([]*APIKey, error)
	// Update persists name/scope/limit edits
	Update(ctx context.Context, key *APIKey) error
	// UpdateStatus sets the status of a key
	UpdateStatus(ctx context.Context, id core.ID, status Status) error
	// UpdateLastUsed bumps the last-used timestamp
	UpdateLastUsed(ctx context.Context, id core.ID) error
}
