package router

import (
	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/usage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the credential lifecycle endpoints. Key
// management itself is authenticated but never rate limited, so a principal
// at quota can still inspect and revoke its keys.
func RegisterRoutes(
	apiBase *gin.RouterGroup,
	repo apikey.Repository,
	limiter *usage.Limiter,
	authmw *auth.Middleware,
	defaultHourly, defaultDaily int,
) {
	handler := NewHandler(repo, limiter)
	keys := apiBase.Group("/agent/keys")
	keys.Use(authmw.Authenticate())
	{
		keys.POST("", handler.IssueKey(defaultHourly, defaultDaily))
		keys.GET("", handler.ListKeys)
		keys.PATCH("/:id", handler.UpdateKey)
		keys.DELETE("/:id", handler.RevokeKey)
		keys.GET("/:id/usage", handler.KeyUsage)
	}
}
