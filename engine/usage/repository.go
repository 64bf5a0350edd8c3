package usage

import (
	"context"
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Repository defines the data access surface for the usage ledger.
type Repository interface {
	// Insert appends one usage row. Rows are never updated or deleted.
	Insert(ctx context.Context, record *Record) error
	// CountSince counts rows for a key newer than the given instant
	CountSince(ctx context.Context, keyID core.ID, since time.Time) (int64, error)
	// EndpointStatsSince aggregates per-endpoint call and error counts for
	// rows newer than the given instant
	EndpointStatsSince(ctx context.Context, keyID core.ID, since time.Time) ([]EndpointStats, error)
}
