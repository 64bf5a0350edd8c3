package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubListings struct {
	snaps map[core.ID]*listing.Snapshot
}

func (s *stubListings) GetSnapshot(_ context.Context, id core.ID) (*listing.Snapshot, error) {
	snap, ok := s.snaps[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	return snap, nil
}

func (s *stubListings) Search(_ context.Context, q *listing.SearchQuery) ([]*listing.Snapshot, error) {
	var out []*listing.Snapshot
	for _, snap := range s.snaps {
		if !snap.IsPurchasable() {
			continue
		}
		if q.Text != "" && !strings.Contains(strings.ToLower(snap.Title), strings.ToLower(q.Text)) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *stubListings) MarkSold(_ context.Context, _ core.ID) error { return nil }

func withPrincipal(key *apikey.APIKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithAPIKey(c.Request.Context(), key)
		ctx = auth.WithUserID(ctx, key.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newTestRouter(t *testing.T, snaps ...*listing.Snapshot) (*gin.Engine, *stubListings) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &stubListings{snaps: map[core.ID]*listing.Snapshot{}}
	for _, snap := range snaps {
		store.snaps[snap.ID] = snap
	}
	key, err := apikey.New(core.MustNewID(), "test bot", []apikey.Scope{apikey.ScopeRead, apikey.ScopePurchase}, 100, 1000)
	require.NoError(t, err)
	handler := NewHandler(nil, store)
	r := gin.New()
	r.Use(withPrincipal(key))
	r.GET("/listings", handler.SearchListings)
	r.GET("/listings/:id", handler.GetListing)
	return r, store
}

func TestSearchListings(t *testing.T) {
	t.Run("Should render money as decimal strings", func(t *testing.T) {
		id := core.MustNewID()
		r, _ := newTestRouter(t, &listing.Snapshot{
			ID: id, SellerID: core.MustNewID(), Title: "Blastoise holo",
			Price: 2500, ShippingPrice: 350, Status: listing.StatusActive, AgentEnabled: true,
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/listings", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Listings []ListingView `json:"listings"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Listings, 1)
		assert.Equal(t, "25.00", body.Listings[0].Price)
		assert.Equal(t, "3.50", body.Listings[0].ShippingPrice)
	})
	t.Run("Should reject a malformed price filter", func(t *testing.T) {
		r, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/listings?min_price=ten", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var problem core.Problem
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
		assert.Equal(t, core.CodeValidation, problem.Code)
	})
}

func TestGetListing(t *testing.T) {
	t.Run("Should hide agent-disabled listings behind a 403", func(t *testing.T) {
		id := core.MustNewID()
		r, _ := newTestRouter(t, &listing.Snapshot{
			ID: id, SellerID: core.MustNewID(), Title: "Umbreon VMAX alt art",
			Price: 42000, Status: listing.StatusActive, AgentEnabled: false,
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/listings/"+id.String(), nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		var problem core.Problem
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
		assert.Equal(t, core.CodeAgentAccessDisabled, problem.Code)
	})
	t.Run("Should return 404 for an unknown listing", func(t *testing.T) {
		r, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/listings/"+core.MustNewID().String(), nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
