package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/usage"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements usage.Repository using PostgreSQL. The table is
// append-only; the windowed counts over it are the rate limiter's state.
type Repository struct {
	db DBInterface
}

// DBInterface defines the minimal interface needed by the repository
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository creates a new usage repository
func NewRepository(db DBInterface) usage.Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, record *usage.Record) error {
	query, args, err := squirrel.Insert("api_key_usage").
		Columns("id", "key_id", "endpoint", "method", "status_code", "latency_ms", "created_at").
		Values(record.ID, record.KeyID, record.Endpoint, record.Method,
			record.StatusCode, record.LatencyMS, record.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

func (r *Repository) CountSince(ctx context.Context, keyID core.ID, since time.Time) (int64, error) {
	query, args, err := squirrel.Select("count(*)").
		From("api_key_usage").
		Where(squirrel.Eq{"key_id": keyID}).
		Where(squirrel.GtOrEq{"created_at": since}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting usage records: %w", err)
	}
	return count, nil
}

func (r *Repository) EndpointStatsSince(ctx context.Context, keyID core.ID, since time.Time) ([]usage.EndpointStats, error) {
	query, args, err := squirrel.Select(
		"endpoint",
		"count(*) AS calls",
		"count(*) FILTER (WHERE status_code >= 400) AS errors",
	).
		From("api_key_usage").
		Where(squirrel.Eq{"key_id": keyID}).
		Where(squirrel.GtOrEq{"created_at": since}).
		GroupBy("endpoint").
		OrderBy("calls DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stats query: %w", err)
	}
	var stats []usage.EndpointStats
	if err := pgxscan.Select(ctx, r.db, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("scanning endpoint stats: %w", err)
	}
	return stats, nil
}
