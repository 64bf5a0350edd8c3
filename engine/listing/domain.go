package listing

import (
	"time"

	"github.com/cardmart/cardmart/engine/core"
)

// Status represents the storefront status of a listing.
type Status string

const (
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusDraft   Status = "draft"
	StatusRemoved Status = "removed"
)

// Snapshot is the read-time view of a listing the transaction core depends
// on. The listing itself is owned by the storefront subsystem; the core only
// reads these fields at decision time and flips status to sold on confirm.
type Snapshot struct {
	ID            core.ID    `json:"id"             db:"id"`
	SellerID      core.ID    `json:"seller_id"      db:"seller_id"`
	Title         string     `json:"title"          db:"title"`
	Price         core.Money `json:"price"          db:"price"`
	ShippingPrice core.Money `json:"shipping_price" db:"shipping_price"`
	Status        Status     `json:"status"         db:"status"`
	AgentEnabled  bool       `json:"agent_enabled"  db:"agent_enabled"`
	CreatedAt     time.Time  `json:"created_at"     db:"created_at"`
}

// Total is the amount a buyer pays for the listing including shipping.
func (s *Snapshot) Total() core.Money {
	return s.Price + s.ShippingPrice
}

// IsPurchasable reports whether the listing can enter a checkout session.
// The agent-visibility flag is a hard authorization boundary: a listing
// without it is unreachable through agent endpoints, even by its seller.
func (s *Snapshot) IsPurchasable() bool {
	return s.Status == StatusActive && s.AgentEnabled
}

// SearchQuery filters agent-facing catalog searches. Only active,
// agent-enabled listings are ever returned.
type SearchQuery struct {
	Text     string
	MinPrice *core.Money
	MaxPrice *core.Money
	Limit    int
	Offset   int
}
