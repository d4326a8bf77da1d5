// Package pricing resolves the effective unit price a customer pays.
// Wholesale accounts get a flat percentage off every catalog price;
// everyone else pays the base price.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Resolve returns the effective price for the given identity, rounded to
// currency precision. Pure function: no side effects, no clock.
func Resolve(base decimal.Decimal, ident *models.Identity) decimal.Decimal {
	if ident == nil || !ident.WholesaleApproved {
		return base
	}

	d := ident.WholesaleDiscountPercent
	if d.LessThanOrEqual(decimal.Zero) {
		return base
	}
	if d.GreaterThan(hundred) {
		d = hundred
	}

	out := base.Mul(hundred.Sub(d)).Div(hundred).Round(2)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// RepriceProduct applies Resolve to every price field of the product,
// variants included. Callers must never reprice fields individually;
// walking the declared list here is what keeps unit, regular, sale and
// variant prices consistent.
func RepriceProduct(p *models.Product, ident *models.Identity) {
	fields := []*decimal.Decimal{&p.Price, &p.RegularPrice, &p.SalePrice}
	for i := range p.Variants {
		fields = append(fields, &p.Variants[i].Price)
	}
	for _, f := range fields {
		*f = Resolve(*f, ident)
	}
}
