package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/internal/repository"
	"github.com/salvadordea/eartesana-sub001/internal/service"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

// --- Request / Response DTOs ---

type identityPayload struct {
	ID                       string          `json:"id"`
	Role                     string          `json:"role,omitempty"`
	WholesaleApproved        bool            `json:"wholesale_approved"`
	WholesaleDiscountPercent decimal.Decimal `json:"wholesale_discount_percent"`
}

func (p *identityPayload) toModel() *models.Identity {
	if p == nil {
		return nil
	}
	return &models.Identity{
		ID:                       p.ID,
		Role:                     p.Role,
		WholesaleApproved:        p.WholesaleApproved,
		WholesaleDiscountPercent: p.WholesaleDiscountPercent,
	}
}

type ValidateCouponRequest struct {
	Code      string           `json:"code"`
	CartTotal decimal.Decimal  `json:"cart_total"`
	ItemCount int              `json:"item_count"`
	Identity  *identityPayload `json:"identity,omitempty"`
}

type ApplyCouponRequest struct {
	SessionID string           `json:"session_id"`
	Code      string           `json:"code"`
	CartTotal decimal.Decimal  `json:"cart_total"`
	ItemCount int              `json:"item_count"`
	Identity  *identityPayload `json:"identity,omitempty"`
}

type RedeemCouponRequest struct {
	OrderID   string           `json:"order_id"`
	SessionID string           `json:"session_id"`
	Code      string           `json:"code,omitempty"`
	CartTotal decimal.Decimal  `json:"cart_total"`
	ItemCount int              `json:"item_count"`
	Identity  *identityPayload `json:"identity,omitempty"`
}

type CreateCouponRequest struct {
	Code              string           `json:"code"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinPurchaseAmount decimal.Decimal  `json:"min_purchase_amount"`
	MinItemCount      int              `json:"min_item_count"`
	ValidFrom         string           `json:"valid_from"`  // RFC3339
	ValidUntil        string           `json:"valid_until"` // RFC3339
	UsageLimit        int              `json:"usage_limit"`
	PerUserLimit      int              `json:"per_user_limit"`
	IsActive          *bool            `json:"is_active,omitempty"`
	BannerPriority    int              `json:"banner_priority"`
	ShowOnBanner      bool             `json:"show_on_banner"`
}

// --- Handler struct & constructor ---

type CouponHandler struct {
	service *service.CouponService
	coupons *repository.CouponRepo
}

func NewCouponHandler(svc *service.CouponService, coupons *repository.CouponRepo) *CouponHandler {
	return &CouponHandler{
		service: svc,
		coupons: coupons,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// --- Handlers ---

// ValidateCoupon handles POST /coupons/validate
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	result, err := h.service.Validate(r.Context(), req.Code, req.CartTotal, req.Identity.toModel(), req.ItemCount)
	if err != nil {
		// Result already carries the fail-closed VALIDATION_ERROR verdict.
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ApplyCoupon handles POST /coupons/apply
func (h *CouponHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req ApplyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	result, err := h.service.Apply(r.Context(), req.SessionID, req.Code, req.CartTotal, req.Identity.toModel(), req.ItemCount)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RedeemCoupon handles POST /coupons/redeem. Called once per confirmed
// order; this is where usage counters move.
func (h *CouponHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req RedeemCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id required")
		return
	}

	usage, err := h.service.Redeem(r.Context(), service.RedeemRequest{
		OrderID:   req.OrderID,
		SessionID: req.SessionID,
		Code:      req.Code,
		CartTotal: req.CartTotal,
		ItemCount: req.ItemCount,
		Identity:  req.Identity.toModel(),
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoAppliedCoupon):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, db.ErrCouponNotFound):
			writeError(w, http.StatusNotFound, models.FailureNotFound.Message())
		case errors.Is(err, db.ErrCouponExhausted):
			writeError(w, http.StatusConflict, models.FailureLimitReached.Message())
		case errors.Is(err, db.ErrUserLimitReached):
			writeError(w, http.StatusConflict, models.FailureUserLimitReached.Message())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, usage)
}

// BannerCoupons handles GET /coupons/banner
func (h *CouponHandler) BannerCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListBanner(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed_list_coupons")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"coupons": coupons})
}

// CreateCoupon handles POST /admin/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	if req.Code == "" || req.DiscountValue.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "code and a positive discount_value are required")
		return
	}
	if req.DiscountType != models.DiscountPercentage && req.DiscountType != models.DiscountFixed {
		writeError(w, http.StatusBadRequest, "discount_type must be percentage or fixed")
		return
	}

	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid valid_from; use RFC3339")
		return
	}
	validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid valid_until; use RFC3339")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	coupon := &models.Coupon{
		Code:              req.Code,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MinItemCount:      req.MinItemCount,
		ValidFrom:         validFrom,
		ValidUntil:        validUntil,
		UsageLimit:        req.UsageLimit,
		PerUserLimit:      req.PerUserLimit,
		IsActive:          active,
		BannerPriority:    req.BannerPriority,
		ShowOnBanner:      req.ShowOnBanner,
	}

	if err := h.coupons.Create(r.Context(), coupon); err != nil {
		writeError(w, http.StatusInternalServerError, "failed_create_coupon")
		return
	}

	writeJSON(w, http.StatusCreated, coupon)
}
