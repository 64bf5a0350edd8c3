package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cardmart/cardmart/engine/auth"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/auth/uc"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyRepo struct {
	mu   sync.Mutex
	keys map[core.ID]*apikey.APIKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: map[core.ID]*apikey.APIKey{}}
}

func (f *fakeKeyRepo) Create(_ context.Context, key *apikey.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	cp.Key = ""
	f.keys[key.ID] = &cp
	return nil
}

func (f *fakeKeyRepo) GetByID(_ context.Context, id core.ID) (*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id]
	if !ok {
		return nil, uc.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (f *fakeKeyRepo) GetByFingerprint(_ context.Context, fingerprint []byte) (*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range f.keys {
		if string(key.Fingerprint) == string(fingerprint) {
			cp := *key
			return &cp, nil
		}
	}
	return nil, uc.ErrKeyNotFound
}

func (f *fakeKeyRepo) ListByUser(_ context.Context, userID core.ID) ([]*apikey.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*apikey.APIKey
	for _, key := range f.keys {
		if key.UserID == userID {
			cp := *key
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeKeyRepo) Update(_ context.Context, key *apikey.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *key
	f.keys[key.ID] = &cp
	return nil
}

func (f *fakeKeyRepo) UpdateStatus(_ context.Context, id core.ID, status apikey.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id]
	if !ok {
		return uc.ErrKeyNotFound
	}
	key.Status = status
	return nil
}

func (f *fakeKeyRepo) UpdateLastUsed(_ context.Context, _ core.ID) error { return nil }

func issueTestKey(t *testing.T, repo apikey.Repository, scopes ...apikey.Scope) *apikey.APIKey {
	t.Helper()
	key, err := uc.NewIssueKey(repo, core.MustNewID(), &uc.IssueKeyInput{
		Name:        "checkout bot",
		Scopes:      scopes,
		HourlyLimit: 100,
		DailyLimit:  1000,
	}).Execute(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, key.Key)
	return key
}

func buildGatedRouter(repo apikey.Repository, required ...apikey.Scope) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	mw := auth.NewMiddleware(repo)
	r.GET("/gated", mw.Authenticate(required...), func(c *gin.Context) {
		key, _ := auth.APIKeyFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"key_id": key.ID})
	})
	return r
}

func doGated(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	r.ServeHTTP(w, req)
	return w
}

func problemCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var problem core.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem.Code
}

func TestAuthenticate(t *testing.T) {
	t.Run("Should admit a valid bearer credential", func(t *testing.T) {
		repo := newFakeKeyRepo()
		key := issueTestKey(t, repo, apikey.ScopeRead)
		r := buildGatedRouter(repo, apikey.ScopeRead)
		w := doGated(r, "Bearer "+key.Key)
		assert.Equal(t, http.StatusOK, w.Code)
	})
	t.Run("Should reject a missing Authorization header", func(t *testing.T) {
		repo := newFakeKeyRepo()
		r := buildGatedRouter(repo)
		w := doGated(r, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, core.CodeUnauthorized, problemCode(t, w))
	})
	t.Run("Should reject a wrong secret without leaking why", func(t *testing.T) {
		repo := newFakeKeyRepo()
		issueTestKey(t, repo, apikey.ScopeRead)
		r := buildGatedRouter(repo, apikey.ScopeRead)
		w := doGated(r, "Bearer cmk_definitelynottherightsecretvalue")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("Should reject a revoked key", func(t *testing.T) {
		repo := newFakeKeyRepo()
		key := issueTestKey(t, repo, apikey.ScopeRead)
		require.NoError(t, repo.UpdateStatus(context.Background(), key.ID, apikey.StatusRevoked))
		r := buildGatedRouter(repo, apikey.ScopeRead)
		w := doGated(r, "Bearer "+key.Key)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("Should refuse a key missing a required scope", func(t *testing.T) {
		repo := newFakeKeyRepo()
		key := issueTestKey(t, repo, apikey.ScopeRead)
		r := buildGatedRouter(repo, apikey.ScopePurchase)
		w := doGated(r, "Bearer "+key.Key)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, core.CodeForbidden, problemCode(t, w))
	})
}
