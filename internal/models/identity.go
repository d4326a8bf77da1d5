package models

import "github.com/shopspring/decimal"

// Identity is the already-resolved output of the storefront's auth layer.
// A nil *Identity means an anonymous/guest session.
type Identity struct {
	ID                       string          `json:"id"`
	Role                     string          `json:"role"`
	WholesaleApproved        bool            `json:"wholesale_approved"`
	WholesaleDiscountPercent decimal.Decimal `json:"wholesale_discount_percent"`
}
