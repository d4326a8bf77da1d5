package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// NormalizeCode uppercases and trims a coupon code; codes are
// case-insensitive everywhere in the engine.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon codes are stored uppercase; lookups normalize before querying.
type Coupon struct {
	ID                int64            `json:"id"`
	Code              string           `json:"code"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinPurchaseAmount decimal.Decimal  `json:"min_purchase_amount"`
	MinItemCount      int              `json:"min_item_count"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until"`
	UsageLimit        int              `json:"usage_limit"` // 0 = unlimited
	UsedCount         int              `json:"used_count"`
	PerUserLimit      int              `json:"per_user_limit"` // 0 = unlimited
	IsActive          bool             `json:"is_active"`
	BannerPriority    int              `json:"banner_priority"`
	ShowOnBanner      bool             `json:"show_on_banner"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CouponUsage is written once per redemption, at order confirmation.
// Immutable after insert.
type CouponUsage struct {
	ID         int64           `json:"id"`
	CouponID   int64           `json:"coupon_id"`
	UserID     *string         `json:"user_id,omitempty"`
	OrderID    string          `json:"order_id"`
	Discount   decimal.Decimal `json:"discount"`
	CartTotal  decimal.Decimal `json:"cart_total"`
	FinalTotal decimal.Decimal `json:"final_total"`
	ClientIP   string          `json:"client_ip"`
	UserAgent  string          `json:"user_agent"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CouponAttempt is appended for every validation call, success or not.
// The validator never reads these back; they exist for fraud review.
type CouponAttempt struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	UserID    *string   `json:"user_id,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
