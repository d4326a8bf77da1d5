package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salvadordea/eartesana-sub001/internal/api/handlers"
	"github.com/salvadordea/eartesana-sub001/internal/repository"
	"github.com/salvadordea/eartesana-sub001/internal/service"
)

// NewRouter builds the HTTP router for the cart engine.
func NewRouter(couponSvc *service.CouponService, recoverySvc *service.RecoveryService, coupons *repository.CouponRepo) http.Handler {
	r := chi.NewRouter()

	couponHandler := handlers.NewCouponHandler(couponSvc, coupons)
	pricingHandler := handlers.NewPricingHandler()
	recoveryHandler := handlers.NewRecoveryHandler(recoverySvc)

	// Public storefront endpoints
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", couponHandler.ValidateCoupon)
		r.Post("/apply", couponHandler.ApplyCoupon)
		r.Post("/redeem", couponHandler.RedeemCoupon)
		r.Get("/banner", couponHandler.BannerCoupons)
	})

	r.Route("/pricing", func(r chi.Router) {
		r.Post("/resolve", pricingHandler.ResolvePrice)
		r.Post("/reprice", pricingHandler.Reprice)
	})

	r.Get("/cart/recover", recoveryHandler.Recover)

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Post("/coupons", couponHandler.CreateCoupon)
		r.Post("/sweep", recoveryHandler.Sweep)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
