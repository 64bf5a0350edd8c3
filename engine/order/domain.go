package order

import (
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Status of a finalized order. Orders are immutable after creation except
// for fulfillment fields set by best-effort side calls.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusShipped Status = "shipped"
)

// Line is one order-line row capturing the unit price at time of sale.
type Line struct {
	ID        core.ID    `json:"id"         db:"id"`
	OrderID   core.ID    `json:"order_id"   db:"order_id"`
	ListingID core.ID    `json:"listing_id" db:"listing_id"`
	Quantity  int        `json:"quantity"   db:"quantity"`
	UnitPrice core.Money `json:"unit_price" db:"unit_price"`
}

// Order is the durable record of a completed purchase. Created exactly once
// per successfully confirmed session.
type Order struct {
	ID              core.ID    `json:"id"                         db:"id"`
	BuyerID         core.ID    `json:"buyer_id"                   db:"buyer_id"`
	SellerID        core.ID    `json:"seller_id"                  db:"seller_id"`
	SessionID       core.ID    `json:"session_id"                 db:"session_id"`
	Total           core.Money `json:"total"                      db:"total"`
	ShippingAddress string     `json:"shipping_address"           db:"shipping_address"`
	PaymentMethod   string     `json:"payment_method"             db:"payment_method"`
	Status          Status     `json:"status"                     db:"status"`
	TrackingNumber  *string    `json:"tracking_number,omitempty"  db:"tracking_number"`
	CreatedAt       time.Time  `json:"created_at"                 db:"created_at"`
	Lines           []*Line    `json:"lines"                      db:"-"`
}

// New builds a single-line order for a confirmed session.
func New(buyerID, sellerID, sessionID, listingID core.ID, unitPrice, total core.Money, address, method string) (*Order, error) {
	if buyerID.IsZero() || sellerID.IsZero() || sessionID.IsZero() || listingID.IsZero() {
		return nil, fmt.Errorf("order requires buyer, seller, session and listing IDs")
	}
	orderID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	lineID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	return &Order{
		ID:              orderID,
		BuyerID:         buyerID,
		SellerID:        sellerID,
		SessionID:       sessionID,
		Total:           total,
		ShippingAddress: address,
		PaymentMethod:   method,
		Status:          StatusPaid,
		CreatedAt:       time.Now().UTC(),
		Lines: []*Line{{
			ID:        lineID,
			OrderID:   orderID,
			ListingID: listingID,
			Quantity:  1,
			UnitPrice: unitPrice,
		}},
	}, nil
}
