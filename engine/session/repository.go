package session

import (
	"context"
	"errors"

	"github.com/cardmart/cardmart/engine/core"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("session not found")

// ErrStaleTransition is returned when a conditional status write finds the
// session no longer in the expected prior state. Concurrent callers racing
// the same transition observe this as a state conflict.
var ErrStaleTransition = errors.New("session is not in the expected state")

// Repository defines the data access surface for checkout sessions. Every
// status write is conditional on the prior status so transitions stay
// one-directional under concurrency.
type Repository interface {
	// Create persists a new active session
	Create(ctx context.Context, s *Session) error
	// GetByID retrieves a session
	GetByID(ctx context.Context, id core.ID) (*Session, error)
	// Transition moves a session from one status to another, returning
	// ErrStaleTransition when the session is not currently in `from`
	Transition(ctx context.Context, id core.ID, from, to Status) error
	// RecordPayment records the settlement outcome while transitioning
	// active -> payment_completed in one conditional write
	RecordPayment(ctx context.Context, id core.ID, processorRef *string, walletDebit core.Money) error
}
