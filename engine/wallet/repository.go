package wallet

import (
	"context"
	"errors"

	"github.com/cardmart/cardmart/engine/core"
)

// ErrInsufficientFunds is returned when a conditional debit finds the
// balance short at write time.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

// Repository defines the data access surface for wallet balances and the
// ledger behind them.
type Repository interface {
	// GetBalance reads the user's current balance; a user with no wallet
	// row has a zero balance
	GetBalance(ctx context.Context, userID core.ID) (core.Money, error)
	// Debit atomically decrements the balance and appends a debit row,
	// guarded by balance >= amount; returns ErrInsufficientFunds when the
	// guard fails
	Debit(ctx context.Context, userID core.ID, amount core.Money, reference string) error
	// Credit atomically increments the balance and appends a credit row
	Credit(ctx context.Context, userID core.ID, amount core.Money, reference string) error
}
