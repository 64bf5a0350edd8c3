package session

import (
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/payment"
)

// Status of a checkout session. Transitions are monotonic and
// one-directional; there is no path back to active.
type Status string

const (
	StatusActive           Status = "active"
	StatusPaymentCompleted Status = "payment_completed"
	StatusCompleted        Status = "completed"
	StatusExpired          Status = "expired"
	StatusFailed           Status = "failed"
)

// CanTransitionTo encodes the legal state machine:
// active -> payment_completed -> completed, active -> expired, and any
// non-terminal state -> failed on an unrecoverable settlement error.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusPaymentCompleted || next == StatusExpired || next == StatusFailed
	case StatusPaymentCompleted:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusFailed
	default:
		return false
	}
}

// IsTerminal reports whether no further lifecycle progress is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusFailed
}

// Session is a time-boxed reservation of a single purchase intent. It is
// not a hold on the listing: the listing stays purchasable by others until
// confirmation writes sold.
type Session struct {
	ID              core.ID        `json:"id"                      db:"id"`
	KeyID           core.ID        `json:"key_id"                  db:"key_id"`
	BuyerID         core.ID        `json:"buyer_id"                db:"buyer_id"`
	ListingID       core.ID        `json:"listing_id"              db:"listing_id"`
	Quantity        int            `json:"quantity"                db:"quantity"`
	Total           core.Money     `json:"total"                   db:"total"`
	ShippingAddress string         `json:"shipping_address"        db:"shipping_address"`
	Method          payment.Method `json:"payment_method"          db:"payment_method"`
	Status          Status         `json:"status"                  db:"status"`
	ProcessorRef    *string        `json:"processor_ref,omitempty" db:"processor_ref"`
	WalletDebit     core.Money     `json:"wallet_debit"            db:"wallet_debit"`
	CreatedAt       time.Time      `json:"created_at"              db:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"              db:"expires_at"`
}

// New creates an active session with an absolute wall-clock expiry.
func New(keyID, buyerID, listingID core.ID, total core.Money, address string, method payment.Method, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session TTL must be positive")
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:              id,
		KeyID:           keyID,
		BuyerID:         buyerID,
		ListingID:       listingID,
		Quantity:        1,
		Total:           total,
		ShippingAddress: address,
		Method:          method,
		Status:          StatusActive,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// IsExpired reports whether the wall-clock expiry has passed. Expiry is
// enforced lazily on next access; there is no background sweeper.
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}
