package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CartStatusActive    = "active"
	CartStatusAbandoned = "abandoned"
	CartStatusRecovered = "recovered"
	CartStatusConverted = "converted"
)

type Cart struct {
	ID           int64      `json:"id"`
	OwnerID      *string    `json:"owner_id,omitempty"`
	SessionID    string     `json:"session_id"`
	ContactEmail string     `json:"contact_email"`
	Status       string     `json:"status"`
	Items        []CartItem `json:"items"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Subtotal is the sum of unit price times quantity over all line items.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

type CartItem struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"cart_id"`
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}
