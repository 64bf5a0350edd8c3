package wallet

import (
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Account holds a user's internal balance in minor units.
type Account struct {
	UserID    core.ID    `json:"user_id"    db:"user_id"`
	Balance   core.Money `json:"balance"    db:"balance"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// EntryType distinguishes ledger directions.
type EntryType string

const (
	EntryDebit  EntryType = "debit"
	EntryCredit EntryType = "credit"
)

// Transaction is one append-only ledger row against an account. Rows are
// never updated; the account balance is adjusted in the same database
// transaction that appends the row.
type Transaction struct {
	ID        core.ID    `json:"id"         db:"id"`
	UserID    core.ID    `json:"user_id"    db:"user_id"`
	Type      EntryType  `json:"type"       db:"type"`
	Amount    core.Money `json:"amount"     db:"amount"`
	Reference string     `json:"reference"  db:"reference"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
