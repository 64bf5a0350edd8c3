package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/payment"
	"github.com/cardmart/cardmart/engine/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolServer exposes the commerce operations as MCP tools over streamable
// HTTP. It wraps the same dispatcher-backed services, so tool calls and raw
// JSON-RPC calls cannot diverge in behavior.
type ToolServer struct {
	mcpServer *server.MCPServer
	httpSrv   *server.StreamableHTTPServer
	sessions  *session.Service
	listings  listing.Repository
}

// NewToolServer creates the MCP server and registers the tool set.
func NewToolServer(sessions *session.Service, listings listing.Repository) *ToolServer {
	mcpServer := server.NewMCPServer(
		"cardmart",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	ts := &ToolServer{mcpServer: mcpServer, sessions: sessions, listings: listings}
	ts.registerTools()
	// The principal resolved by the HTTP middleware travels into tool
	// handler contexts through the request context.
	ts.httpSrv = server.NewStreamableHTTPServer(mcpServer,
		server.WithHTTPContextFunc(func(_ context.Context, r *http.Request) context.Context {
			return r.Context()
		}),
	)
	return ts
}

// Handler returns the http.Handler serving the streamable MCP endpoint.
func (ts *ToolServer) Handler() http.Handler { return ts.httpSrv }

func (ts *ToolServer) registerTools() {
	ts.mcpServer.AddTool(mcp.NewTool("search_listings",
		mcp.WithDescription("Search active card listings available to agents"),
		mcp.WithString("q", mcp.Description("Free-text match against listing titles")),
		mcp.WithString("min_price", mcp.Description("Minimum price as a decimal string, e.g. \"5.00\"")),
		mcp.WithString("max_price", mcp.Description("Maximum price as a decimal string")),
	), ts.searchListings)
	ts.mcpServer.AddTool(mcp.NewTool("get_listing",
		mcp.WithDescription("Fetch a single listing by ID"),
		mcp.WithString("listing_id", mcp.Required(), mcp.Description("Listing ID")),
	), ts.getListing)
	ts.mcpServer.AddTool(mcp.NewTool("create_checkout",
		mcp.WithDescription("Open a checkout session for a listing"),
		mcp.WithString("listing_id", mcp.Required(), mcp.Description("Listing ID")),
		mcp.WithString("payment_method", mcp.Required(), mcp.Description("wallet, processor or split")),
		mcp.WithString("shipping_address", mcp.Required(), mcp.Description("Delivery address")),
	), ts.createCheckout)
	ts.mcpServer.AddTool(mcp.NewTool("pay_checkout",
		mcp.WithDescription("Settle an active checkout session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Checkout session ID")),
	), ts.payCheckout)
	ts.mcpServer.AddTool(mcp.NewTool("complete_checkout",
		mcp.WithDescription("Confirm a paid checkout session and create the order"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Checkout session ID")),
	), ts.completeCheckout)
}

func (ts *ToolServer) searchListings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, resErr := toolPrincipal(ctx, apikey.ScopeRead); resErr != nil {
		return resErr, nil
	}
	q := &listing.SearchQuery{Text: req.GetString("q", "")}
	if raw := req.GetString("min_price", ""); raw != "" {
		price, err := core.ParseMoney(raw)
		if err != nil {
			return mcp.NewToolResultError("invalid min_price"), nil
		}
		q.MinPrice = &price
	}
	if raw := req.GetString("max_price", ""); raw != "" {
		price, err := core.ParseMoney(raw)
		if err != nil {
			return mcp.NewToolResultError("invalid max_price"), nil
		}
		q.MaxPrice = &price
	}
	snaps, err := ts.listings.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching listings: %w", err)
	}
	views := make([]listingResult, len(snaps))
	for i, snap := range snaps {
		views[i] = newListingResult(snap)
	}
	return jsonResult(map[string]any{"listings": views})
}

func (ts *ToolServer) getListing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, resErr := toolPrincipal(ctx, apikey.ScopeRead); resErr != nil {
		return resErr, nil
	}
	rawID, err := req.RequireString("listing_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := core.ParseID(rawID)
	if err != nil {
		return mcp.NewToolResultError("invalid listing_id"), nil
	}
	snap, err := ts.listings.GetSnapshot(ctx, id)
	if err != nil {
		if err == listing.ErrNotFound {
			return mcp.NewToolResultError("listing not found"), nil
		}
		return nil, fmt.Errorf("reading listing: %w", err)
	}
	if !snap.AgentEnabled {
		return mcp.NewToolResultError("listing is not available to agents"), nil
	}
	return jsonResult(newListingResult(snap))
}

func (ts *ToolServer) createCheckout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, resErr := toolPrincipal(ctx, apikey.ScopePurchase)
	if resErr != nil {
		return resErr, nil
	}
	rawID, err := req.RequireString("listing_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	listingID, err := core.ParseID(rawID)
	if err != nil {
		return mcp.NewToolResultError("invalid listing_id"), nil
	}
	method, err := req.RequireString("payment_method")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	address, err := req.RequireString("shipping_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := ts.sessions.Create(ctx, key, &session.CreateInput{
		ListingID:       listingID,
		Method:          payment.Method(method),
		ShippingAddress: address,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(newSessionResult(sess))
}

func (ts *ToolServer) payCheckout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, sessionID, resErr := toolSession(ctx, req)
	if resErr != nil {
		return resErr, nil
	}
	sess, err := ts.sessions.Pay(ctx, key, sessionID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(newSessionResult(sess))
}

func (ts *ToolServer) completeCheckout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, sessionID, resErr := toolSession(ctx, req)
	if resErr != nil {
		return resErr, nil
	}
	ord, err := ts.sessions.Confirm(ctx, key, sessionID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(newOrderResult(ord))
}

func toolPrincipal(ctx context.Context, scope apikey.Scope) (*apikey.APIKey, *mcp.CallToolResult) {
	key, ok := auth.APIKeyFromContext(ctx)
	if !ok {
		return nil, mcp.NewToolResultError("authentication required")
	}
	if !key.HasScopes(scope) {
		return nil, mcp.NewToolResultError("insufficient scope: " + string(scope) + " required")
	}
	return key, nil
}

func toolSession(ctx context.Context, req mcp.CallToolRequest) (*apikey.APIKey, core.ID, *mcp.CallToolResult) {
	key, resErr := toolPrincipal(ctx, apikey.ScopePurchase)
	if resErr != nil {
		return nil, "", resErr
	}
	rawID, err := req.RequireString("session_id")
	if err != nil {
		return nil, "", mcp.NewToolResultError(err.Error())
	}
	sessionID, err := core.ParseID(rawID)
	if err != nil {
		return nil, "", mcp.NewToolResultError("invalid session_id")
	}
	return key, sessionID, nil
}

// toolError renders a typed domain error as a tool failure. Internal
// failures propagate as Go errors so the server reports them as such.
func toolError(err error) (*mcp.CallToolResult, error) {
	typed := core.AsError(err)
	if typed.Code == core.CodeInternal {
		return nil, err
	}
	return mcp.NewToolResultError(typed.Message), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
