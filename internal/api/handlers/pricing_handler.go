package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/internal/pricing"
)

type ResolvePriceRequest struct {
	BasePrice decimal.Decimal  `json:"base_price"`
	Identity  *identityPayload `json:"identity,omitempty"`
}

type RepriceRequest struct {
	Product  models.Product   `json:"product"`
	Identity *identityPayload `json:"identity,omitempty"`
}

type PricingHandler struct{}

func NewPricingHandler() *PricingHandler {
	return &PricingHandler{}
}

// ResolvePrice handles POST /pricing/resolve
func (h *PricingHandler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	var req ResolvePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	price := pricing.Resolve(req.BasePrice, req.Identity.toModel())
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"price": price})
}

// Reprice handles POST /pricing/reprice. The whole product goes through
// one transform so unit, regular, sale and variant prices stay consistent.
func (h *PricingHandler) Reprice(w http.ResponseWriter, r *http.Request) {
	var req RepriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	pricing.RepriceProduct(&req.Product, req.Identity.toModel())
	writeJSON(w, http.StatusOK, req.Product)
}
