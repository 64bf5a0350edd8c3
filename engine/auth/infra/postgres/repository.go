package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/auth/apikey"
	"github.com/cardmart/cardmart/engine/auth/uc"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const keyColumns = "id, user_id, name, key_hash, fingerprint, scopes, " +
	"hourly_limit, daily_limit, status, expires_at, last_used_at, created_at, updated_at"

// Repository implements apikey.Repository using PostgreSQL.
type Repository struct {
	db DBInterface
}

// DBInterface defines the minimal interface needed by the repository
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewRepository creates a new API key repository
func NewRepository(db DBInterface) apikey.Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, key *apikey.APIKey) error {
	query, args, err := squirrel.Insert("api_keys").
		Columns("id", "user_id", "name", "key_hash", "fingerprint", "scopes",
			"hourly_limit", "daily_limit", "status", "expires_at", "created_at", "updated_at").
		Values(key.ID, key.UserID, key.Name, key.KeyHash, key.Fingerprint, scopeStrings(key.Scopes),
			key.HourlyLimit, key.DailyLimit, key.Status, key.ExpiresAt, key.CreatedAt, key.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting API key: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id core.ID) (*apikey.APIKey, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *Repository) GetByFingerprint(ctx context.Context, fingerprint []byte) (*apikey.APIKey, error) {
	return r.getOne(ctx, squirrel.Eq{"fingerprint": fingerprint})
}

func (r *Repository) getOne(ctx context.Context, pred squirrel.Eq) (*apikey.APIKey, error) {
	query, args, err := squirrel.Select(keyColumns).
		From("api_keys").
		Where(pred).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row keyRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, uc.ErrKeyNotFound
		}
		return nil, fmt.Errorf("scanning API key: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) ListByUser(ctx context.Context, userID core.ID) ([]*apikey.APIKey, error) {
	query, args, err := squirrel.Select(keyColumns).
		From("api_keys").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []*keyRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning API keys: %w", err)
	}
	keys := make([]*apikey.APIKey, len(rows))
	for i, row := range rows {
		keys[i] = row.toDomain()
	}
	return keys, nil
}

func (r *Repository) Update(ctx context.Context, key *apikey.APIKey) error {
	query, args, err := squirrel.Update("api_keys").
		Set("name", key.Name).
		Set("scopes", scopeStrings(key.Scopes)).
		Set("hourly_limit", key.HourlyLimit).
		Set("daily_limit", key.DailyLimit).
		Set("updated_at", key.UpdatedAt).
		Where(squirrel.Eq{"id": key.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uc.ErrKeyNotFound
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id core.ID, status apikey.Status) error {
	query, args, err := squirrel.Update("api_keys").
		Set("status", status).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating API key status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uc.ErrKeyNotFound
	}
	return nil
}

func (r *Repository) UpdateLastUsed(ctx context.Context, id core.ID) error {
	// GREATEST keeps concurrent bumps from moving the timestamp backwards.
	query := `UPDATE api_keys SET last_used_at = GREATEST(coalesce(last_used_at, 'epoch'), now()) WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("updating API key last_used_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uc.ErrKeyNotFound
	}
	return nil
}

// keyRow mirrors the api_keys table; scopes arrive as a text array.
type keyRow struct {
	ID          core.ID    `db:"id"`
	UserID      core.ID    `db:"user_id"`
	Name        string     `db:"name"`
	KeyHash     []byte     `db:"key_hash"`
	Fingerprint []byte     `db:"fingerprint"`
	Scopes      []string   `db:"scopes"`
	HourlyLimit int        `db:"hourly_limit"`
	DailyLimit  int        `db:"daily_limit"`
	Status      string     `db:"status"`
	ExpiresAt   *time.Time `db:"expires_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

func (row *keyRow) toDomain() *apikey.APIKey {
	scopes := make([]apikey.Scope, len(row.Scopes))
	for i, s := range row.Scopes {
		scopes[i] = apikey.Scope(s)
	}
	return &apikey.APIKey{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.Name,
		KeyHash:     row.KeyHash,
		Fingerprint: row.Fingerprint,
		Scopes:      scopes,
		HourlyLimit: row.HourlyLimit,
		DailyLimit:  row.DailyLimit,
		Status:      apikey.Status(row.Status),
		ExpiresAt:   row.ExpiresAt,
		LastUsedAt:  row.LastUsedAt,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func scopeStrings(scopes []apikey.Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}
