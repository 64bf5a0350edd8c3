package router

import (
	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/usage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the REST commerce dialect. Catalog reads need
// the read scope; the purchase lifecycle needs the purchase scope. Every
// route sits behind the usage gate so each call lands in the ledger.
func RegisterRoutes(
	apiBase *gin.RouterGroup,
	handler *Handler,
	authmw *auth.Middleware,
	gate *usage.Middleware,
) {
	listings := apiBase.Group("/listings")
	listings.Use(authmw.Authenticate(apikey.ScopeRead), gate.Gate())
	{
		listings.GET("", handler.SearchListings)
		listings.GET("/:id", handler.GetListing)
	}
	sessions := apiBase.Group("/checkout_sessions")
	sessions.Use(authmw.Authenticate(apikey.ScopePurchase), gate.Gate())
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("/:id", handler.GetSession)
		sessions.POST("/:id/payment", handler.PaySession)
		sessions.POST("/:id/complete", handler.CompleteSession)
	}
}
