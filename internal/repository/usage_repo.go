package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salvadordea/eartesana-sub001/internal/models"
)

type UsageRepo struct {
	db *sql.DB
}

func NewUsageRepo(conn *sql.DB) *UsageRepo {
	return &UsageRepo{db: conn}
}

// CountForUser is the non-locking read used during validation.
func (r *UsageRepo) CountForUser(ctx context.Context, couponID int64, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`
	if err := r.db.QueryRowContext(ctx, query, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usages for user %s: %w", userID, err)
	}
	return n, nil
}

// CountForUserTx runs inside the redeem transaction, after the coupon row
// has been locked, so the count cannot move under us.
func (r *UsageRepo) CountForUserTx(ctx context.Context, tx *sql.Tx, couponID int64, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`
	if err := tx.QueryRowContext(ctx, query, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usages for user %s: %w", userID, err)
	}
	return n, nil
}

func (r *UsageRepo) Insert(ctx context.Context, tx *sql.Tx, u *models.CouponUsage) error {
	query := `
		INSERT INTO coupon_usages
		(coupon_id, user_id, order_id, discount, cart_total, final_total,
		 client_ip, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		RETURNING id, created_at
	`

	err := tx.QueryRowContext(ctx, query,
		u.CouponID,
		u.UserID,
		u.OrderID,
		u.Discount,
		u.CartTotal,
		u.FinalTotal,
		u.ClientIP,
		u.UserAgent,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}
