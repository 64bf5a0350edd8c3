package auth

import (
	"errors"
	"strings"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/auth/uc"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/infra/server/router"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Middleware handles bearer credential authentication for gated routes.
type Middleware struct {
	repo apikey.Repository
}

func NewMiddleware(repo apikey.Repository) *Middleware {
	return &Middleware{repo: repo}
}

// Authenticate validates the bearer credential and stores the resolved
// principal in the request context. Any failure here short-circuits the
// call before inventory or money logic runs.
func (m *Middleware) Authenticate(required ...apikey.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())
		secret, ok := bearerToken(c)
		if !ok {
			router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "missing or malformed Authorization header"))
			return
		}
		key, err := uc.NewValidateKey(m.repo, secret, required...).Execute(c.Request.Context())
		if err != nil {
			log.Debug("API key validation failed", "error", err)
			router.RespondError(c, classify(err))
			return
		}
		ctx := WithAPIKey(c.Request.Context(), key)
		ctx = WithUserID(ctx, key.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func classify(err error) error {
	switch {
	case errors.Is(err, uc.ErrInvalidKey):
		return core.NewError(err, core.CodeUnauthorized, "invalid API key")
	case errors.Is(err, uc.ErrExpiredKey):
		return core.NewError(err, core.CodeUnauthorized, "API key expired")
	case errors.Is(err, uc.ErrInsufficientScope):
		return core.NewError(err, core.CodeForbidden, "insufficient scope")
	default:
		return core.Internal(err)
	}
}
