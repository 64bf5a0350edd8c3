package router

import (
	"net/http"
	"time"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/infra/server/router"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/order"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/session"
	"github.com/gin-gonic/gin"
)

// Handler serves the REST commerce dialect. Money crosses this boundary as
// decimal strings only; everything inside works in integer minor units.
type Handler struct {
	sessions *session.Service
	listings listing.Repository
}

// NewHandler creates a new commerce handler
func NewHandler(sessions *session.Service, listings listing.Repository) *Handler {
	return &Handler{sessions: sessions, listings: listings}
}

// ListingView is the wire shape of a listing.
type ListingView struct {
	ID            core.ID `json:"id"`
	Title         string  `json:"title"`
	Price         string  `json:"price"`
	ShippingPrice string  `json:"shipping_price"`
	Status        string  `json:"status"`
}

// SessionView is the wire shape of a checkout session.
type SessionView struct {
	ID              core.ID   `json:"id"`
	ListingID       core.ID   `json:"listing_id"`
	Total           string    `json:"total"`
	ShippingAddress string    `json:"shipping_address"`
	PaymentMethod   string    `json:"payment_method"`
	Status          string    `json:"status"`
	WalletDebit     string    `json:"wallet_debit"`
	ProcessorRef    *string   `json:"processor_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// OrderView is the wire shape of a finalized order.
type OrderView struct {
	ID              core.ID   `json:"id"`
	SessionID       core.ID   `json:"session_id"`
	ListingID       core.ID   `json:"listing_id"`
	Total           string    `json:"total"`
	ShippingAddress string    `json:"shipping_address"`
	PaymentMethod   string    `json:"payment_method"`
	Status          string    `json:"status"`
	TrackingNumber  *string   `json:"tracking_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateSessionRequest opens a checkout session for one listing.
type CreateSessionRequest struct {
	ListingID       string `json:"listing_id"       binding:"required"`
	PaymentMethod   string `json:"payment_method"   binding:"required"`
	ShippingAddress string `json:"shipping_address" binding:"required"`
}

// SearchListings handles GET /listings.
func (h *Handler) SearchListings(c *gin.Context) {
	q := &listing.SearchQuery{Text: c.Query("q")}
	if raw := c.Query("min_price"); raw != "" {
		price, err := core.ParseMoney(raw)
		if err != nil {
			router.RespondValidation(c, "invalid min_price")
			return
		}
		q.MinPrice = &price
	}
	if raw := c.Query("max_price"); raw != "" {
		price, err := core.ParseMoney(raw)
		if err != nil {
			router.RespondValidation(c, "invalid max_price")
			return
		}
		q.MaxPrice = &price
	}
	snaps, err := h.listings.Search(c.Request.Context(), q)
	if err != nil {
		router.RespondError(c, core.Internal(err))
		return
	}
	views := make([]ListingView, len(snaps))
	for i, snap := range snaps {
		views[i] = listingView(snap)
	}
	c.JSON(http.StatusOK, gin.H{"listings": views})
}

// GetListing handles GET /listings/:id. The visibility gate applies to
// single reads exactly as it does to search.
func (h *Handler) GetListing(c *gin.Context) {
	id, err := core.ParseID(c.Param("id"))
	if err != nil {
		router.RespondValidation(c, "invalid listing ID")
		return
	}
	snap, err := h.listings.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		if err == listing.ErrNotFound {
			router.RespondError(c, core.NewError(err, core.CodeNotFound, "listing not found"))
			return
		}
		router.RespondError(c, core.Internal(err))
		return
	}
	if !snap.AgentEnabled {
		router.RespondError(c, core.NewError(nil, core.CodeAgentAccessDisabled, "listing is not available to agents"))
		return
	}
	c.JSON(http.StatusOK, listingView(snap))
}

// CreateSession handles POST /checkout_sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	key, ok := principal(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondValidation(c, err.Error())
		return
	}
	listingID, err := core.ParseID(req.ListingID)
	if err != nil {
		router.RespondValidation(c, "invalid listing ID")
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), key, &session.CreateInput{
		ListingID:       listingID,
		Method:          payment.Method(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		router.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionView(sess))
}

// GetSession handles GET /checkout_sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	key, sessionID, ok := principalAndSession(c)
	if !ok {
		return
	}
	sess, err := h.sessions.Get(c.Request.Context(), key, sessionID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

// PaySession handles POST /checkout_sessions/:id/payment.
func (h *Handler) PaySession(c *gin.Context) {
	key, sessionID, ok := principalAndSession(c)
	if !ok {
		return
	}
	sess, err := h.sessions.Pay(c.Request.Context(), key, sessionID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

// CompleteSession handles POST /checkout_sessions/:id/complete.
func (h *Handler) CompleteSession(c *gin.Context) {
	key, sessionID, ok := principalAndSession(c)
	if !ok {
		return
	}
	ord, err := h.sessions.Confirm(c.Request.Context(), key, sessionID)
	if err != nil {
		router.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(ord))
}

func principal(c *gin.Context) (*apikey.APIKey, bool) {
	key, ok := auth.APIKeyFromContext(c.Request.Context())
	if !ok {
		router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	return key, true
}

func principalAndSession(c *gin.Context) (*apikey.APIKey, core.ID, bool) {
	key, ok := principal(c)
	if !ok {
		return nil, "", false
	}
	sessionID, err := core.ParseID(c.Param("id"))
	if err != nil {
		router.RespondValidation(c, "invalid session ID")
		return nil, "", false
	}
	return key, sessionID, true
}

func listingView(snap *listing.Snapshot) ListingView {
	return ListingView{
		ID:            snap.ID,
		Title:         snap.Title,
		Price:         snap.Price.Decimal(),
		ShippingPrice: snap.ShippingPrice.Decimal(),
		Status:        string(snap.Status),
	}
}

func sessionView(sess *session.Session) SessionView {
	return SessionView{
		ID:              sess.ID,
		ListingID:       sess.ListingID,
		Total:           sess.Total.Decimal(),
		ShippingAddress: sess.ShippingAddress,
		PaymentMethod:   string(sess.Method),
		Status:          string(sess.Status),
		WalletDebit:     sess.WalletDebit.Decimal(),
		ProcessorRef:    sess.ProcessorRef,
		CreatedAt:       sess.CreatedAt,
		ExpiresAt:       sess.ExpiresAt,
	}
}

func orderView(ord *order.Order) OrderView {
	view := OrderView{
		ID:              ord.ID,
		SessionID:       ord.SessionID,
		Total:           ord.Total.Decimal(),
		ShippingAddress: ord.ShippingAddress,
		PaymentMethod:   ord.PaymentMethod,
		Status:          string(ord.Status),
		TrackingNumber:  ord.TrackingNumber,
		CreatedAt:       ord.CreatedAt,
	}
	if len(ord.Lines) > 0 {
		view.ListingID = ord.Lines[0].ListingID
	}
	return view
}
