package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/session"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sessionColumns = "id, key_id, buyer_id, listing_id, quantity, total, " +
	"shipping_address, payment_method, status, processor_ref, wallet_debit, created_at, expires_at"

// Repository implements session.Repository using PostgreSQL. Every status
// write carries the expected prior status in its WHERE clause, so racing
// callers resolve to exactly one winner without row locks.
type Repository struct {
	db DBInterface
}

// DBInterface defines the minimal interface needed by the repository
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository creates a new session repository
func NewRepository(db DBInterface) session.Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s *session.Session) error {
	query, args, err := squirrel.Insert("checkout_sessions").
		Columns("id", "key_id", "buyer_id", "listing_id", "quantity", "total",
			"shipping_address", "payment_method", "status", "wallet_debit", "created_at", "expires_at").
		Values(s.ID, s.KeyID, s.BuyerID, s.ListingID, s.Quantity, s.Total,
			s.ShippingAddress, s.Method, s.Status, s.WalletDebit, s.CreatedAt, s.ExpiresAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id core.ID) (*session.Session, error) {
	query, args, err := squirrel.Select(sessionColumns).
		From("checkout_sessions").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var s session.Session
	if err := pgxscan.Get(ctx, r.db, &s, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &s, nil
}

func (r *Repository) Transition(ctx context.Context, id core.ID, from, to session.Status) error {
	query, args, err := squirrel.Update("checkout_sessions").
		Set("status", to).
		Where(squirrel.Eq{"id": id, "status": from}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building transition query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transitioning session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return session.ErrStaleTransition
	}
	return nil
}

func (r *Repository) RecordPayment(ctx context.Context, id core.ID, processorRef *string, walletDebit core.Money) error {
	query, args, err := squirrel.Update("checkout_sessions").
		Set("status", session.StatusPaymentCompleted).
		Set("processor_ref", processorRef).
		Set("wallet_debit", walletDebit).
		Where(squirrel.Eq{"id": id, "status": session.StatusActive}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building payment query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("recording payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return session.ErrStaleTransition
	}
	return nil
}
