package models

import "github.com/shopspring/decimal"

type Product struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	RegularPrice decimal.Decimal  `json:"regular_price"`
	SalePrice    decimal.Decimal  `json:"sale_price"`
	Variants     []ProductVariant `json:"variants,omitempty"`
}

type ProductVariant struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}
