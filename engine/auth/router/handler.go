package router

import (
	"errors"
	"net/http"
	"time"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/auth/uc"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/infra/server/router"
	"github.com/cardmart/cardmart/engine/usage"
	"github.com/gin-gonic/gin"
)

// Handler handles the credential lifecycle endpoints.
type Handler struct {
	repo    apikey.Repository
	limiter *usage.Limiter
}

// NewHandler creates a new credential handler
func NewHandler(repo apikey.Repository, limiter *usage.Limiter) *Handler {
	return &Handler{repo: repo, limiter: limiter}
}

// IssueKeyRequest is the payload for creating a new API key.
type IssueKeyRequest struct {
	Name        string     `json:"name"         binding:"required"`
	Scopes      []string   `json:"scopes"       binding:"required"`
	HourlyLimit int        `json:"hourly_limit"`
	DailyLimit  int        `json:"daily_limit"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UpdateKeyRequest carries optional key edits. Absent fields are untouched.
type UpdateKeyRequest struct {
	Name        *string  `json:"name"`
	Scopes      []string `json:"scopes"`
	HourlyLimit *int     `json:"hourly_limit"`
	DailyLimit  *int     `json:"daily_limit"`
}

// IssueKey handles POST /agent/keys. The raw secret appears in this
// response exactly once and is unrecoverable afterwards.
func (h *Handler) IssueKey(defaultHourly, defaultDaily int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c.Request.Context())
		if !ok {
			router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "authentication required"))
			return
		}
		var req IssueKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			router.RespondValidation(c, err.Error())
			return
		}
		input := &uc.IssueKeyInput{
			Name:        req.Name,
			Scopes:      parseScopes(req.Scopes),
			HourlyLimit: req.HourlyLimit,
			DailyLimit:  req.DailyLimit,
			ExpiresAt:   req.ExpiresAt,
		}
		if input.HourlyLimit == 0 {
			input.HourlyLimit = defaultHourly
		}
		if input.DailyLimit == 0 {
			input.DailyLimit = defaultDaily
		}
		key, err := uc.NewIssueKey(h.repo, userID, input).Execute(c.Request.Context())
		if err != nil {
			router.RespondError(c, classifyKeyError(err))
			return
		}
		c.JSON(http.StatusCreated, key)
	}
}

// ListKeys handles GET /agent/keys.
func (h *Handler) ListKeys(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c.Request.Context())
	if !ok {
		router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "authentication required"))
		return
	}
	keys, err := uc.NewListKeys(h.repo, userID).Execute(c.Request.Context())
	if err != nil {
		router.RespondError(c, core.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// UpdateKey handles PATCH /agent/keys/:id.
func (h *Handler) UpdateKey(c *gin.Context) {
	userID, keyID, ok := h.ownerAndKey(c)
	if !ok {
		return
	}
	var req UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		router.RespondValidation(c, err.Error())
		return
	}
	input := &uc.UpdateKeyInput{
		Name:        req.Name,
		HourlyLimit: req.HourlyLimit,
		DailyLimit:  req.DailyLimit,
	}
	if req.Scopes != nil {
		input.Scopes = parseScopes(req.Scopes)
	}
	key, err := uc.NewUpdateKey(h.repo, userID, keyID, input).Execute(c.Request.Context())
	if err != nil {
		router.RespondError(c, classifyKeyError(err))
		return
	}
	c.JSON(http.StatusOK, key)
}

// RevokeKey handles DELETE /agent/keys/:id. Revocation is irreversible.
func (h *Handler) RevokeKey(c *gin.Context) {
	userID, keyID, ok := h.ownerAndKey(c)
	if !ok {
		return
	}
	if err := uc.NewRevokeKey(h.repo, userID, keyID).Execute(c.Request.Context()); err != nil {
		router.RespondError(c, classifyKeyError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

// KeyUsage handles GET /agent/keys/:id/usage.
func (h *Handler) KeyUsage(c *gin.Context) {
	userID, keyID, ok := h.ownerAndKey(c)
	if !ok {
		return
	}
	key, err := h.repo.GetByID(c.Request.Context(), keyID)
	if err != nil {
		router.RespondError(c, classifyKeyError(err))
		return
	}
	if key.UserID != userID {
		router.RespondError(c, core.NewError(nil, core.CodeForbidden, "API key belongs to another user"))
		return
	}
	stats, err := h.limiter.StatsForKey(c.Request.Context(), key)
	if err != nil {
		router.RespondError(c, core.Internal(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ownerAndKey(c *gin.Context) (core.ID, core.ID, bool) {
	userID, ok := auth.UserIDFromContext(c.Request.Context())
	if !ok {
		router.RespondError(c, core.NewError(nil, core.CodeUnauthorized, "authentication required"))
		return "", "", false
	}
	keyID, err := core.ParseID(c.Param("id"))
	if err != nil {
		router.RespondValidation(c, "invalid key ID")
		return "", "", false
	}
	return userID, keyID, true
}

func parseScopes(raw []string) []apikey.Scope {
	scopes := make([]apikey.Scope, len(raw))
	for i, s := range raw {
		scopes[i] = apikey.Scope(s)
	}
	return scopes
}

func classifyKeyError(err error) error {
	switch {
	case errors.Is(err, uc.ErrKeyNotFound):
		return core.NewError(err, core.CodeNotFound, "API key not found")
	case errors.Is(err, uc.ErrNotOwner):
		return core.NewError(err, core.CodeForbidden, "API key belongs to another user")
	default:
		var typed *core.Error
		if errors.As(err, &typed) {
			return typed
		}
		// Validation failures out of the domain layer surface verbatim.
		return core.NewError(err, core.CodeValidation, err.Error())
	}
}
