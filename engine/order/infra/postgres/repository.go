package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/cardmart/cardmart/engine/core"
	"github.com/cardmart/cardmart/engine/listing"
	"github.com/cardmart/cardmart/engine/order"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const orderColumns = "id, buyer_id, seller_id, session_id, total, " +
	"shipping_address, payment_method, status, tracking_number, created_at"

// Repository implements order.Repository using PostgreSQL.
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

// NewRepository creates a new order repository
func NewRepository(db DBInterface) order.Repository {
	return &Repository{db: db}
}

// CreateWithListingSale writes the order, its lines and the listing's sold
// status as one transaction. The sold-write is guarded by the listing still
// being active; a guard failure rolls everything back and surfaces
// listing.ErrNotActive, so no order can exist for a listing sold elsewhere.
func (r *Repository) CreateWithListingSale(ctx context.Context, ord *order.Order, listingID core.ID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	const soldQuery = `UPDATE listings SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := tx.Exec(ctx, soldQuery, listing.StatusSold, listingID, listing.StatusActive)
	if err != nil {
		return fmt.Errorf("marking listing sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return listing.ErrNotActive
	}
	query, args, err := squirrel.Insert("orders").
		Columns("id", "buyer_id", "seller_id", "session_id", "total",
			"shipping_address", "payment_method", "status", "created_at").
		Values(ord.ID, ord.BuyerID, ord.SellerID, ord.SessionID, ord.Total,
			ord.ShippingAddress, ord.PaymentMethod, ord.Status, ord.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building order insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	for _, line := range ord.Lines {
		lineQuery, lineArgs, err := squirrel.Insert("order_lines").
			Columns("id", "order_id", "listing_id", "quantity", "unit_price").
			Values(line.ID, line.OrderID, line.ListingID, line.Quantity, line.UnitPrice).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("building line insert: %w", err)
		}
		if _, err := tx.Exec(ctx, lineQuery, lineArgs...); err != nil {
			return fmt.Errorf("inserting order line: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id core.ID) (*order.Order, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *Repository) GetBySessionID(ctx context.Context, sessionID core.ID) (*order.Order, error) {
	return r.getOne(ctx, squirrel.Eq{"session_id": sessionID})
}

func (r *Repository) getOne(ctx context.Context, pred squirrel.Eq) (*order.Order, error) {
	query, args, err := squirrel.Select(orderColumns).
		From("orders").
		Where(pred).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var ord order.Order
	if err := pgxscan.Get(ctx, r.db, &ord, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("order not found")
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	lines, err := r.lines(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	ord.Lines = lines
	return &ord, nil
}

func (r *Repository) lines(ctx context.Context, orderID core.ID) ([]*order.Line, error) {
	query, args, err := squirrel.Select("id", "order_id", "listing_id", "quantity", "unit_price").
		From("order_lines").
		Where(squirrel.Eq{"order_id": orderID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building lines query: %w", err)
	}
	var lines []*order.Line
	if err := pgxscan.Select(ctx, r.db, &lines, query, args...); err != nil {
		return nil, fmt.Errorf("scanning order lines: %w", err)
	}
	return lines, nil
}

func (r *Repository) SetTracking(ctx context.Context, id core.ID, trackingNumber string) error {
	query, args, err := squirrel.Update("orders").
		Set("tracking_number", trackingNumber).
		Set("status", order.StatusShipped).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building tracking update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating tracking number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found")
	}
	return nil
}
