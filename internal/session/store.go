// Package session holds the coupon a shopper has committed to within one
// storefront session. The applied coupon lives here, not in any global,
// until order confirmation consumes it.
package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type AppliedCoupon struct {
	Code      string          `json:"code"`
	Discount  decimal.Decimal `json:"discount"`
	AppliedAt time.Time       `json:"applied_at"`
}

type Store interface {
	Get(ctx context.Context, sessionID string) (*AppliedCoupon, error)
	// Set overwrites any previously applied coupon; re-applying the same
	// code recomputes rather than double-counts.
	Set(ctx context.Context, sessionID string, coupon AppliedCoupon) error
	Clear(ctx context.Context, sessionID string) error
}
