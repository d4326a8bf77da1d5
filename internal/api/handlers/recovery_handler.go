package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/salvadordea/eartesana-sub001/internal/service"
)

type RecoveryHandler struct {
	service *service.RecoveryService
}

func NewRecoveryHandler(svc *service.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{service: svc}
}

// Recover handles GET /cart/recover?cart_id=..&token=..&coupon=..
// The session id travels in the X-Session-ID header set by the storefront.
func (h *RecoveryHandler) Recover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cartID, err := strconv.ParseInt(q.Get("cart_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusGone, service.ErrInvalidRecoveryLink.Error())
		return
	}

	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = q.Get("session_id")
	}

	result, err := h.service.ProcessRecovery(r.Context(), cartID, q.Get("token"), q.Get("coupon"), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRecoveryLink) {
			writeError(w, http.StatusGone, service.ErrInvalidRecoveryLink.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Sweep handles POST /admin/sweep — a manual trigger for the periodic pass.
func (h *RecoveryHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep_failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
