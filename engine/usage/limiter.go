package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/cardmart/cardmart/engine/auth/apikey"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Decision is the outcome of a quota check. When Allowed is false,
// RetryAfter carries the hint for the exhausted window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Window     string
}

// Limiter enforces per-key sliding-window quotas by counting usage rows.
// This is a count-then-act check: concurrent requests inside one polling
// interval can exceed the limit by their own number, which is accepted.
type Limiter struct {
	repo Repository
}

func NewLimiter(repo Repository) *Limiter {
	return &Limiter{repo: repo}
}

// Check evaluates both windows against the key's configured quotas. The
// tighter of the two remaining budgets is reported on success.
func (l *Limiter) Check(ctx context.Context, key *apikey.APIKey) (*Decision, error) {
	now := time.Now().UTC()
	hourly, err := l.repo.CountSince(ctx, key.ID, now.Add(-hourWindow))
	if err != nil {
		return nil, fmt.Errorf("counting hourly usage: %w", err)
	}
	if hourly >= int64(key.HourlyLimit) {
		return &Decision{
			Allowed:    false,
			Limit:      key.HourlyLimit,
			Remaining:  0,
			ResetAt:    now.Add(hourWindow),
			RetryAfter: hourWindow,
			Window:     "hour",
		}, nil
	}
	daily, err := l.repo.CountSince(ctx, key.ID, now.Add(-dayWindow))
	if err != nil {
		return nil, fmt.Errorf("counting daily usage: %w", err)
	}
	if daily >= int64(key.DailyLimit) {
		return &Decision{
			Allowed:    false,
			Limit:      key.DailyLimit,
			Remaining:  0,
			ResetAt:    now.Add(dayWindow),
			RetryAfter: dayWindow,
			Window:     "day",
		}, nil
	}
	hourlyRemaining := key.HourlyLimit - int(hourly)
	dailyRemaining := key.DailyLimit - int(daily)
	decision := &Decision{
		Allowed:   true,
		Limit:     key.HourlyLimit,
		Remaining: hourlyRemaining,
		ResetAt:   now.Add(hourWindow),
		Window:    "hour",
	}
	if dailyRemaining < hourlyRemaining {
		decision.Limit = key.DailyLimit
		decision.Remaining = dailyRemaining
		decision.ResetAt = now.Add(dayWindow)
		decision.Window = "day"
	}
	return decision, nil
}

// StatsForKey builds the usage summary surfaced by the statistics endpoint.
func (l *Limiter) StatsForKey(ctx context.Context, key *apikey.APIKey) (*Stats, error) {
	now := time.Now().UTC()
	hourly, err := l.repo.CountSince(ctx, key.ID, now.Add(-hourWindow))
	if err != nil {
		return nil, fmt.Errorf("counting hourly usage: %w", err)
	}
	daily, err := l.repo.CountSince(ctx, key.ID, now.Add(-dayWindow))
	if err != nil {
		return nil, fmt.Errorf("counting daily usage: %w", err)
	}
	endpoints, err := l.repo.EndpointStatsSince(ctx, key.ID, now.Add(-dayWindow))
	if err != nil {
		return nil, fmt.Errorf("aggregating endpoint stats: %w", err)
	}
	for i := range endpoints {
		if endpoints[i].Calls > 0 {
			endpoints[i].ErrorRate = float64(endpoints[i].Errors) / float64(endpoints[i].Calls)
		}
	}
	return &Stats{
		HourlyCount: hourly,
		DailyCount:  daily,
		HourlyLimit: key.HourlyLimit,
		DailyLimit:  key.DailyLimit,
		Endpoints:   endpoints,
	}, nil
}
