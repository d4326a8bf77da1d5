package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

// CartRepo is the engine-side implementation of the storefront's cart
// store capability: stale-cart queries, guarded status transitions, and
// item restore on recovery.
type CartRepo struct {
	db *sql.DB
}

func NewCartRepo(conn *sql.DB) *CartRepo {
	return &CartRepo{db: conn}
}

func (r *CartRepo) GetByID(ctx context.Context, id int64) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `
		SELECT id, owner_id, session_id, contact_email, status, last_activity, created_at
		FROM carts
		WHERE id = $1
	`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cart.ID,
		&cart.OwnerID,
		&cart.SessionID,
		&cart.ContactEmail,
		&cart.Status,
		&cart.LastActivity,
		&cart.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart %d: %w", id, err)
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func (r *CartRepo) listItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, variant_id, name, unit_price, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var it models.CartItem
		err := rows.Scan(
			&it.ID,
			&it.CartID,
			&it.ProductID,
			&it.VariantID,
			&it.Name,
			&it.UnitPrice,
			&it.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListStaleActive returns active carts whose last mutation predates the
// cutoff. The sweep marks these abandoned.
func (r *CartRepo) ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error) {
	query := `
		SELECT id, owner_id, session_id, contact_email, status, last_activity, created_at
		FROM carts
		WHERE status = $1 AND last_activity < $2
		ORDER BY last_activity
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.CartStatusActive, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale carts: %w", err)
	}
	defer rows.Close()

	var carts []models.Cart
	for rows.Next() {
		var cart models.Cart
		err := rows.Scan(
			&cart.ID,
			&cart.OwnerID,
			&cart.SessionID,
			&cart.ContactEmail,
			&cart.Status,
			&cart.LastActivity,
			&cart.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stale cart: %w", err)
		}
		carts = append(carts, cart)
	}
	return carts, rows.Err()
}

// SetStatus transitions only from the expected state and reports whether
// the transition happened. Re-running a sweep on an already-abandoned
// cart is a no-op through this guard.
func (r *CartRepo) SetStatus(ctx context.Context, cartID int64, from, to string) (bool, error) {
	query := `UPDATE carts SET status = $3 WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, cartID, from, to)
	if err != nil {
		return false, fmt.Errorf("set cart %d status %s->%s: %w", cartID, from, to, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set cart status rows affected: %w", err)
	}
	return affected > 0, nil
}

// Reactivate attaches a recovered cart back to a live session and resets
// the activity clock. Only an explicit recovery goes through here; plain
// page views never touch last_activity.
func (r *CartRepo) Reactivate(ctx context.Context, cartID int64, sessionID string) error {
	query := `
		UPDATE carts
		SET status = $2, session_id = $3, last_activity = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, cartID, models.CartStatusActive, sessionID); err != nil {
		return fmt.Errorf("reactivate cart %d: %w", cartID, err)
	}
	return nil
}

// Touch resets last_activity after an item mutation.
func (r *CartRepo) Touch(ctx context.Context, cartID int64) error {
	query := `UPDATE carts SET last_activity = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, cartID); err != nil {
		return fmt.Errorf("touch cart %d: %w", cartID, err)
	}
	return nil
}
