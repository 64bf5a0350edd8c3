package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/order"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/session"
	"github.com/gin-gonic/gin"
)

// Method names form a closed enum. Anything else is answered with
// method-not-found; there is no reflection or dynamic registry behind
// the dispatch.
const (
	MethodListingsSearch   = "listings/search"
	MethodListingsGet      = "listings/get"
	MethodCheckoutCreate   = "checkout/create"
	MethodCheckoutPay      = "checkout/pay"
	MethodCheckoutComplete = "checkout/complete"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Dispatcher serves the JSON-RPC commerce dialect over a single endpoint.
// It shares the session service and listing store with the REST dialect,
// so both surfaces observe identical semantics.
type Dispatcher struct {
	sessions *session.Service
	listings listing.Repository
}

// NewDispatcher creates a new JSON-RPC dispatcher
func NewDispatcher(sessions *session.Service, listings listing.Repository) *Dispatcher {
	return &Dispatcher{sessions: sessions, listings: listings}
}

// Handle serves POST on the RPC endpoint. Batch requests are not
// supported; one request maps to one response.
func (d *Dispatcher) Handle(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, nil, nil, &Error{Code: CodeParseError, Message: "parse error"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		respond(c, req.ID, nil, &Error{Code: CodeInvalidRequest, Message: "invalid request"})
		return
	}
	key, ok := auth.APIKeyFromContext(c.Request.Context())
	if !ok {
		respond(c, req.ID, nil, &Error{Code: CodeUnauthorized, Message: "authentication required"})
		return
	}
	result, rpcErr := d.dispatch(c.Request.Context(), key, &req)
	respond(c, req.ID, result, rpcErr)
}

func (d *Dispatcher) dispatch(ctx context.Context, key *apikey.APIKey, req *Request) (any, *Error) {
	scope, known := requiredScope(req.Method)
	if !known {
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found", Data: req.Method}
	}
	if !key.HasScopes(scope) {
		return nil, &Error{Code: CodeForbidden, Message: "insufficient scope", Data: string(scope)}
	}
	switch req.Method {
	case MethodListingsSearch:
		return d.listingsSearch(ctx, req.Params)
	case MethodListingsGet:
		return d.listingsGet(ctx, req.Params)
	case MethodCheckoutCreate:
		return d.checkoutCreate(ctx, key, req.Params)
	case MethodCheckoutPay:
		return d.checkoutPay(ctx, key, req.Params)
	case MethodCheckoutComplete:
		return d.checkoutComplete(ctx, key, req.Params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

// requiredScope names the scope a method demands. Catalog reads need
// read, the checkout lifecycle needs purchase.
func requiredScope(method string) (apikey.Scope, bool) {
	switch method {
	case MethodListingsSearch, MethodListingsGet:
		return apikey.ScopeRead, true
	case MethodCheckoutCreate, MethodCheckoutPay, MethodCheckoutComplete:
		return apikey.ScopePurchase, true
	default:
		return "", false
	}
}

type searchParams struct {
	Query    string `json:"q"`
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

func (d *Dispatcher) listingsSearch(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params searchParams
	if err := parseParams(raw, &params); err != nil {
		return nil, err
	}
	q := &listing.SearchQuery{Text: params.Query, Limit: params.Limit, Offset: params.Offset}
	if params.MinPrice != "" {
		price, err := core.ParseMoney(params.MinPrice)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid min_price"}
		}
		q.MinPrice = &price
	}
	if params.MaxPrice != "" {
		price, err := core.ParseMoney(params.MaxPrice)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid max_price"}
		}
		q.MaxPrice = &price
	}
	snaps, err := d.listings.Search(ctx, q)
	if err != nil {
		return nil, domainError(core.Internal(err))
	}
	views := make([]listingResult, len(snaps))
	for i, snap := range snaps {
		views[i] = newListingResult(snap)
	}
	return map[string]any{"listings": views}, nil
}

type getParams struct {
	ListingID string `json:"listing_id"`
}

func (d *Dispatcher) listingsGet(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var params getParams
	if err := parseParams(raw, &params); err != nil {
		return nil, err
	}
	id, err := core.ParseID(params.ListingID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid listing_id"}
	}
	snap, getErr := d.listings.GetSnapshot(ctx, id)
	if getErr != nil {
		if getErr == listing.ErrNotFound {
			return nil, &Error{Code: CodeNotFound, Message: "listing not found"}
		}
		return nil, domainError(core.Internal(getErr))
	}
	if !snap.AgentEnabled {
		return nil, &Error{Code: CodeAgentAccessDisabled, Message: "listing is not available to agents"}
	}
	return newListingResult(snap), nil
}

type createParams struct {
	ListingID       string `json:"listing_id"`
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
}

func (d *Dispatcher) checkoutCreate(ctx context.Context, key *apikey.APIKey, raw json.RawMessage) (any, *Error) {
	var params createParams
	if err := parseParams(raw, &params); err != nil {
		return nil, err
	}
	listingID, err := core.ParseID(params.ListingID)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid listing_id"}
	}
	sess, createErr := d.sessions.Create(ctx, key, &session.CreateInput{
		ListingID:       listingID,
		Method:          payment.Method(params.PaymentMethod),
		ShippingAddress: params.ShippingAddress,
	})
	if createErr != nil {
		return nil, domainError(createErr)
	}
	return newSessionResult(sess), nil
}

type sessionParams struct {
	SessionID string `json:"session_id"`
}

func (d *Dispatcher) checkoutPay(ctx context.Context, key *apikey.APIKey, raw json.RawMessage) (any, *Error) {
	sessionID, rpcErr := parseSessionID(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sess, err := d.sessions.Pay(ctx, key, sessionID)
	if err != nil {
		return nil, domainError(err)
	}
	return newSessionResult(sess), nil
}

func (d *Dispatcher) checkoutComplete(ctx context.Context, key *apikey.APIKey, raw json.RawMessage) (any, *Error) {
	sessionID, rpcErr := parseSessionID(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ord, err := d.sessions.Confirm(ctx, key, sessionID)
	if err != nil {
		return nil, domainError(err)
	}
	return newOrderResult(ord), nil
}

func parseSessionID(raw json.RawMessage) (core.ID, *Error) {
	var params sessionParams
	if err := parseParams(raw, &params); err != nil {
		return "", err
	}
	id, err := core.ParseID(params.SessionID)
	if err != nil {
		return "", &Error{Code: CodeInvalidParams, Message: "invalid session_id"}
	}
	return id, nil
}

func parseParams(raw json.RawMessage, dest any) *Error {
	if len(raw) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "malformed params"}
	}
	return nil
}

// domainError converts a typed domain error to its JSON-RPC shape. The
// human-readable message survives; internal detail does not.
func domainError(err error) *Error {
	typed := core.AsError(err)
	rpcErr := &Error{Code: rpcCode(typed.Code), Message: typed.Message}
	switch {
	case typed.Code == core.CodeRateLimited && typed.Extras != nil:
		rpcErr.Data = typed.Extras
	case rpcErr.Code == CodeInvalidState && typed.Code != core.CodeInvalidState:
		// The domain code survives the collapse onto the shared slot.
		rpcErr.Data = typed.Code
	}
	return rpcErr
}

func respond(c *gin.Context, id json.RawMessage, result any, rpcErr *Error) {
	resp := &Response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
	status := 200
	if rpcErr != nil {
		status = httpStatus(rpcErr.Code)
	}
	c.JSON(status, resp)
}

type listingResult struct {
	ID            core.ID `json:"id"`
	Title         string  `json:"title"`
	Price         string  `json:"price"`
	ShippingPrice string  `json:"shipping_price"`
	Status        string  `json:"status"`
}

func newListingResult(snap *listing.Snapshot) listingResult {
	return listingResult{
		ID:            snap.ID,
		Title:         snap.Title,
		Price:         snap.Price.Decimal(),
		ShippingPrice: snap.ShippingPrice.Decimal(),
		Status:        string(snap.Status),
	}
}

type sessionResult struct {
	ID            core.ID   `json:"id"`
	ListingID     core.ID   `json:"listing_id"`
	Total         string    `json:"total"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	WalletDebit   string    `json:"wallet_debit"`
	ProcessorRef  *string   `json:"processor_ref,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func newSessionResult(sess *session.Session) sessionResult {
	return sessionResult{
		ID:            sess.ID,
		ListingID:     sess.ListingID,
		Total:         sess.Total.Decimal(),
		PaymentMethod: string(sess.Method),
		Status:        string(sess.Status),
		WalletDebit:   sess.WalletDebit.Decimal(),
		ProcessorRef:  sess.ProcessorRef,
		ExpiresAt:     sess.ExpiresAt,
	}
}

type orderResult struct {
	ID             core.ID   `json:"id"`
	SessionID      core.ID   `json:"session_id"`
	Total          string    `json:"total"`
	Status         string    `json:"status"`
	TrackingNumber *string   `json:"tracking_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func newOrderResult(ord *order.Order) orderResult {
	return orderResult{
		ID:             ord.ID,
		SessionID:      ord.SessionID,
		Total:          ord.Total.Decimal(),
		Status:         string(ord.Status),
		TrackingNumber: ord.TrackingNumber,
		CreatedAt:      ord.CreatedAt,
	}
}
