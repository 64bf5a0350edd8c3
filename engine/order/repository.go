package order

import (
	"context"

	"github.com/cardmart/cardmart/engine/core"
)

// Repository defines the data access surface for orders.
type Repository interface {
	// CreateWithListingSale persists the order and its lines and flips the
	// listing to sold in one database transaction. The listing write is
	// conditional on the listing still being active; when that guard fails
	// the whole transaction rolls back and listing.ErrNotActive is
	// returned, so an order can never exist for a listing that was sold
	// through another channel.
	CreateWithListingSale(ctx context.Context, order *Order, listingID core.ID) error
	// GetByID retrieves an order with its lines
	GetByID(ctx context.Context, id core.ID) (*Order, error)
	// GetBySessionID retrieves the order created for a session, if any
	GetBySessionID(ctx context.Context, sessionID core.ID) (*Order, error)
	// SetTracking records the tracking number from a fulfillment side call
	SetTracking(ctx context.Context, id core.ID, trackingNumber string) error
}
