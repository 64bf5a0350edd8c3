package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	listingColumns     = "id, seller_id, title, price, shipping_price, status, agent_enabled, created_at"
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Repository implements listing.Repository using PostgreSQL.
type Repository struct {
	db DBInterface
}

// DBInterface defines the minimal interface needed by the repository
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository creates a new listing repository
func NewRepository(db DBInterface) listing.Repository {
	return &Repository{db: db}
}

func (r *Repository) GetSnapshot(ctx context.Context, id core.ID) (*listing.Snapshot, error) {
	query, args, err := squirrel.Select(listingColumns).
		From("listings").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var snap listing.Snapshot
	if err := pgxscan.Get(ctx, r.db, &snap, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, listing.ErrNotFound
		}
		return nil, fmt.Errorf("scanning listing: %w", err)
	}
	return &snap, nil
}

// Search returns only active, agent-enabled listings. The visibility gate
// is applied in the query itself so hidden listings never leave the store.
func (r *Repository) Search(ctx context.Context, q *listing.SearchQuery) ([]*listing.Snapshot, error) {
	qb := squirrel.Select(listingColumns).
		From("listings").
		Where(squirrel.Eq{"status": listing.StatusActive}).
		Where(squirrel.Eq{"agent_enabled": true}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)
	if q.Text != "" {
		qb = qb.Where("title ILIKE ?", "%"+q.Text+"%")
	}
	if q.MinPrice != nil {
		qb = qb.Where(squirrel.GtOrEq{"price": *q.MinPrice})
	}
	if q.MaxPrice != nil {
		qb = qb.Where(squirrel.LtOrEq{"price": *q.MaxPrice})
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	qb = qb.Limit(uint64(limit))
	if q.Offset > 0 {
		qb = qb.Offset(uint64(q.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}
	var snaps []*listing.Snapshot
	if err := pgxscan.Select(ctx, r.db, &snaps, query, args...); err != nil {
		return nil, fmt.Errorf("scanning listings: %w", err)
	}
	return snaps, nil
}

// MarkSold flips status to sold guarded by the row still being active.
// When zero rows match, the listing either does not exist or is no longer
// active; a follow-up read disambiguates the two.
func (r *Repository) MarkSold(ctx context.Context, id core.ID) error {
	query, args, err := squirrel.Update("listings").
		Set("status", listing.StatusSold).
		Where(squirrel.Eq{"id": id, "status": listing.StatusActive}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("marking listing sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetSnapshot(ctx, id); getErr != nil {
			return getErr
		}
		return listing.ErrNotActive
	}
	return nil
}
