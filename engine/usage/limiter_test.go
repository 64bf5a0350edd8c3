package usage

import (
	"context"
	"testing"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps records in memory and answers windowed counts over them.
type fakeRepo struct {
	records []*Record
}

func (f *fakeRepo) Insert(_ context.Context, r *Record) error {
	f.records = append(f.records, r)
	return nil
}

func (f *fakeRepo) CountSince(_ context.Context, keyID core.ID, since time.Time) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.KeyID == keyID && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) EndpointStatsSince(_ context.Context, keyID core.ID, since time.Time) ([]EndpointStats, error) {
	agg := map[string]*EndpointStats{}
	for _, r := range f.records {
		if r.KeyID != keyID || !r.CreatedAt.After(since) {
			continue
		}
		s, ok := agg[r.Endpoint]
		if !ok {
			s = &EndpointStats{Endpoint: r.Endpoint}
			agg[r.Endpoint] = s
		}
		s.Calls++
		if r.StatusCode >= 400 {
			s.Errors++
		}
	}
	out := make([]EndpointStats, 0, len(agg))
	for _, s := range agg {
		out = append(out, *s)
	}
	return out, nil
}

func testKey(t *testing.T, hourly, daily int) *apikey.APIKey {
	t.Helper()
	key, err := apikey.New(core.MustNewID(), "test key", []apikey.Scope{apikey.ScopeRead}, hourly, daily)
	require.NoError(t, err)
	return key
}

func record(keyID core.ID, age time.Duration, status int) *Record {
	return &Record{
		ID:         core.MustNewID(),
		KeyID:      keyID,
		Endpoint:   "/api/v0/listings",
		Method:     "GET",
		StatusCode: status,
		CreatedAt:  time.Now().UTC().Add(-age),
	}
}

func TestLimiterCheck(t *testing.T) {
	ctx := context.Background()
	t.Run("Should allow when both windows have budget", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 5, 50)
		d, err := NewLimiter(repo).Check(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5, d.Remaining)
	})
	t.Run("Should reject the N+1th call in the hourly window with a retry-after", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 3, 100)
		for range 3 {
			require.NoError(t, repo.Insert(ctx, record(key.ID, time.Minute, 200)))
		}
		d, err := NewLimiter(repo).Check(ctx, key)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, "hour", d.Window)
		assert.Equal(t, time.Hour, d.RetryAfter)
		assert.Positive(t, d.RetryAfter.Seconds())
	})
	t.Run("Should allow again once the window rolls over", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 3, 100)
		for range 3 {
			require.NoError(t, repo.Insert(ctx, record(key.ID, 2*time.Hour, 200)))
		}
		d, err := NewLimiter(repo).Check(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
	t.Run("Should enforce the daily window independently", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 100, 4)
		for range 4 {
			require.NoError(t, repo.Insert(ctx, record(key.ID, 6*time.Hour, 200)))
		}
		d, err := NewLimiter(repo).Check(ctx, key)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, "day", d.Window)
		assert.Equal(t, 24*time.Hour, d.RetryAfter)
	})
	t.Run("Should count failed calls against quota", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 2, 100)
		require.NoError(t, repo.Insert(ctx, record(key.ID, time.Minute, 500)))
		require.NoError(t, repo.Insert(ctx, record(key.ID, time.Minute, 404)))
		d, err := NewLimiter(repo).Check(ctx, key)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})
}

func TestLimiterStatsForKey(t *testing.T) {
	ctx := context.Background()
	t.Run("Should report windowed counts and per-endpoint error rates", func(t *testing.T) {
		repo := &fakeRepo{}
		key := testKey(t, 100, 1000)
		require.NoError(t, repo.Insert(ctx, record(key.ID, time.Minute, 200)))
		require.NoError(t, repo.Insert(ctx, record(key.ID, time.Minute, 429)))
		require.NoError(t, repo.Insert(ctx, record(key.ID, 5*time.Hour, 200)))
		stats, err := NewLimiter(repo).StatsForKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.HourlyCount)
		assert.Equal(t, int64(3), stats.DailyCount)
		require.Len(t, stats.Endpoints, 1)
		assert.InDelta(t, 1.0/3.0, stats.Endpoints[0].ErrorRate, 1e-9)
	})
}
