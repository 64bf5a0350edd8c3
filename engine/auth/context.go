package auth

import (
	"context"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
)

type contextKey string

const (
	contextKeyAPIKey contextKey = "auth_api_key"
	contextKeyUserID contextKey = "auth_user_id"
)

// WithAPIKey stores the authenticated key in the context.
func WithAPIKey(ctx context.Context, key *apikey.APIKey) context.Context {
	return context.WithValue(ctx, contextKeyAPIKey, key)
}

// APIKeyFromContext retrieves the authenticated key from the context.
func APIKeyFromContext(ctx context.Context) (*apikey.APIKey, bool) {
	key, ok := ctx.Value(contextKeyAPIKey).(*apikey.APIKey)
	return key, ok
}

// WithUserID stores the authenticated key owner's user ID in the context.
func WithUserID(ctx context.Context, userID core.ID) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// UserIDFromContext retrieves the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) (core.ID, bool) {
	id, ok := ctx.Value(contextKeyUserID).(core.ID)
	return id, ok
}
