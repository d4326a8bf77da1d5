package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

type CouponRepo struct {
	db *sql.DB
}

func NewCouponRepo(conn *sql.DB) *CouponRepo {
	return &CouponRepo{db: conn}
}

const couponColumns = `id, code, discount_type, discount_value, max_discount_amount,
	       min_purchase_amount, min_item_count, valid_from, valid_until,
	       usage_limit, used_count, per_user_limit, is_active,
	       banner_priority, show_on_banner, created_at, updated_at`

// GetByCode returns nil, nil when no coupon carries the code.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE code = $1
	`

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, models.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon %q: %w", code, err)
	}
	return c, nil
}

func (r *CouponRepo) Create(ctx context.Context, c *models.Coupon) error {
	query := `
		INSERT INTO coupons
		(code, discount_type, discount_value, max_discount_amount,
		 min_purchase_amount, min_item_count, valid_from, valid_until,
		 usage_limit, per_user_limit, is_active, banner_priority,
		 show_on_banner, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		models.NormalizeCode(c.Code),
		c.DiscountType,
		c.DiscountValue,
		c.MaxDiscountAmount,
		c.MinPurchaseAmount,
		c.MinItemCount,
		c.ValidFrom,
		c.ValidUntil,
		c.UsageLimit,
		c.PerUserLimit,
		c.IsActive,
		c.BannerPriority,
		c.ShowOnBanner,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create coupon %q: %w", c.Code, err)
	}
	c.Code = models.NormalizeCode(c.Code)
	return nil
}

// LockForRedeem loads the usage counters under FOR UPDATE. Every redeem
// path locks the coupon row first, which serializes per-coupon counter
// movement across concurrent checkouts.
func (r *CouponRepo) LockForRedeem(ctx context.Context, tx *sql.Tx, couponID int64) (usedCount, usageLimit int, err error) {
	query := `
		SELECT used_count, usage_limit
		FROM coupons
		WHERE id = $1
		FOR UPDATE
	`

	err = tx.QueryRowContext(ctx, query, couponID).Scan(&usedCount, &usageLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, db.ErrCouponNotFound
		}
		return 0, 0, fmt.Errorf("lock coupon %d: %w", couponID, err)
	}
	return usedCount, usageLimit, nil
}

// ConsumeUsage advances the global counter, refusing to pass the limit.
// The WHERE guard makes the increment atomic even outside the row lock.
func (r *CouponRepo) ConsumeUsage(ctx context.Context, tx *sql.Tx, couponID int64) error {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND (usage_limit = 0 OR used_count < usage_limit)
	`

	result, err := tx.ExecContext(ctx, query, couponID)
	if err != nil {
		return fmt.Errorf("consume coupon %d: %w", couponID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume coupon %d rows affected: %w", couponID, err)
	}
	if affected == 0 {
		return db.ErrCouponExhausted
	}
	return nil
}

// ListBanner returns active coupons flagged for storefront display,
// highest priority first.
func (r *CouponRepo) ListBanner(ctx context.Context, limit int) ([]models.Coupon, error) {
	query := `
		SELECT ` + couponColumns + `
		FROM coupons
		WHERE show_on_banner AND is_active AND valid_until > NOW()
		ORDER BY banner_priority DESC, valid_until ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list banner coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan banner coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var c models.Coupon
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MaxDiscountAmount,
		&c.MinPurchaseAmount,
		&c.MinItemCount,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.UsageLimit,
		&c.UsedCount,
		&c.PerUserLimit,
		&c.IsActive,
		&c.BannerPriority,
		&c.ShowOnBanner,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
