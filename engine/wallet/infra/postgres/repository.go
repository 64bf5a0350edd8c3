package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/wallet"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements wallet.Repository using PostgreSQL. Balance writes
// and their ledger rows are committed in one transaction.
type Repository struct {
	db DBInterface
}

// DBInterface defines the minimal interface needed by the repository
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewRepository creates a new wallet repository
func NewRepository(db DBInterface) wallet.Repository {
	return &Repository{db: db}
}

// GetBalance reads the current balance. A user without a wallet row has a
// zero balance.
func (r *Repository) GetBalance(ctx context.Context, userID core.ID) (core.Money, error) {
	query, args, err := squirrel.Select("balance").
		From("wallet_accounts").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building select query: %w", err)
	}
	var balance int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("scanning balance: %w", err)
	}
	return core.Money(balance), nil
}

// Debit decrements the balance guarded by balance >= amount and appends the
// debit ledger row in the same transaction. A guard failure rolls the whole
// transaction back and returns ErrInsufficientFunds.
func (r *Repository) Debit(ctx context.Context, userID core.ID, amount core.Money, reference string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning debit transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	const debitQuery = `
		UPDATE wallet_accounts
		SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1`
	tag, err := tx.Exec(ctx, debitQuery, int64(amount), userID)
	if err != nil {
		return fmt.Errorf("debiting wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wallet.ErrInsufficientFunds
	}
	if err := appendEntry(ctx, tx, userID, wallet.EntryDebit, amount, reference); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing debit: %w", err)
	}
	return nil
}

// Credit increments the balance, creating the wallet row on first use, and
// appends the credit ledger row in the same transaction.
func (r *Repository) Credit(ctx context.Context, userID core.ID, amount core.Money, reference string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning credit transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	const creditQuery = `
		INSERT INTO wallet_accounts (user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = wallet_accounts.balance + EXCLUDED.balance, updated_at = now()`
	if _, err := tx.Exec(ctx, creditQuery, userID, int64(amount)); err != nil {
		return fmt.Errorf("crediting wallet: %w", err)
	}
	if err := appendEntry(ctx, tx, userID, wallet.EntryCredit, amount, reference); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing credit: %w", err)
	}
	return nil
}

func appendEntry(ctx context.Context, tx pgx.Tx, userID core.ID, typ wallet.EntryType, amount core.Money, reference string) error {
	id, err := core.NewID()
	if err != nil {
		return fmt.Errorf("generating ledger entry ID: %w", err)
	}
	query, args, err := squirrel.Insert("wallet_transactions").
		Columns("id", "user_id", "type", "amount", "reference", "created_at").
		Values(id, userID, typ, int64(amount), reference, time.Now().UTC()).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building ledger insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return nil
}
