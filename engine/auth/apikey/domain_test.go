package apikey

import (
	"testing"
	"time"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Should create an active key with defaults applied", func(t *testing.T) {
		key, err := New(core.MustNewID(), "storefront bot", []Scope{ScopeRead, ScopePurchase}, 1000, 10000)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, key.Status)
		assert.True(t, key.IsActive())
		assert.Empty(t, key.KeyHash)
	})
	t.Run("Should reject empty scopes", func(t *testing.T) {
		_, err := New(core.MustNewID(), "bot", nil, 1000, 10000)
		assert.Error(t, err)
	})
	t.Run("Should reject unknown scopes", func(t *testing.T) {
		_, err := New(core.MustNewID(), "bot", []Scope{"admin"}, 1000, 10000)
		assert.Error(t, err)
	})
	t.Run("Should reject non-positive limits", func(t *testing.T) {
		_, err := New(core.MustNewID(), "bot", []Scope{ScopeRead}, 0, 10000)
		assert.Error(t, err)
	})
}

func TestAPIKeyIsActive(t *testing.T) {
	t.Run("Should fail closed once the expiry passes", func(t *testing.T) {
		key, err := New(core.MustNewID(), "bot", []Scope{ScopeRead}, 10, 100)
		require.NoError(t, err)
		past := time.Now().UTC().Add(-time.Minute)
		key.ExpiresAt = &past
		assert.True(t, key.IsExpired())
		assert.False(t, key.IsActive())
	})
	t.Run("Should be inactive after revocation", func(t *testing.T) {
		key, err := New(core.MustNewID(), "bot", []Scope{ScopeRead}, 10, 100)
		require.NoError(t, err)
		key.Revoke()
		assert.False(t, key.IsActive())
	})
}

func TestAPIKeyHasScopes(t *testing.T) {
	key := &APIKey{Scopes: []Scope{ScopeRead, ScopePurchase}}
	t.Run("Should require every scope with no partial credit", func(t *testing.T) {
		assert.True(t, key.HasScopes(ScopeRead))
		assert.True(t, key.HasScopes(ScopeRead, ScopePurchase))
		assert.False(t, key.HasScopes(ScopeRead, ScopeListingWrite))
	})
	t.Run("Should pass with no required scopes", func(t *testing.T) {
		assert.True(t, key.HasScopes())
	})
}
