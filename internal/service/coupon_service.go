package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/internal/session"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

var hundred = decimal.NewFromInt(100)

// ErrNoAppliedCoupon means Redeem was called with nothing pinned to the
// session and no explicit code.
var ErrNoAppliedCoupon = errors.New("no coupon applied to this session")

// Stores required by the coupon service; interfaces so tests can fake them.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockForRedeem(ctx context.Context, tx *sql.Tx, couponID int64) (usedCount, usageLimit int, err error)
	ConsumeUsage(ctx context.Context, tx *sql.Tx, couponID int64) error
}

type UsageStore interface {
	CountForUser(ctx context.Context, couponID int64, userID string) (int, error)
	CountForUserTx(ctx context.Context, tx *sql.Tx, couponID int64, userID string) (int, error)
	Insert(ctx context.Context, tx *sql.Tx, u *models.CouponUsage) error
}

type AttemptStore interface {
	Log(ctx context.Context, a *models.CouponAttempt) error
}

type CouponService struct {
	coupons  CouponStore
	usages   UsageStore
	attempts AttemptStore
	sessions session.Store
	runTx    func(ctx context.Context, fn func(*sql.Tx) error) error
	now      func() time.Time
}

func NewCouponService(conn *sql.DB, coupons CouponStore, usages UsageStore, attempts AttemptStore, sessions session.Store) *CouponService {
	return &CouponService{
		coupons:  coupons,
		usages:   usages,
		attempts: attempts,
		sessions: sessions,
		runTx: func(ctx context.Context, fn func(*sql.Tx) error) error {
			return db.WithRetry(ctx, conn, db.TxOptions{
				IsolationLevel: sql.LevelSerializable,
				MaxRetries:     3,
			}, fn)
		},
		now: time.Now,
	}
}

// Validate runs the eligibility chain for a code against a cart subtotal.
// First failure wins; the order is fixed and observable to callers.
// Counters never move here: validating twice consumes nothing.
func (s *CouponService) Validate(ctx context.Context, code string, cartTotal decimal.Decimal, ident *models.Identity, itemCount int) (models.ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	code = models.NormalizeCode(code)

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		// Store unreachable: fail closed, not open.
		return s.reject(ctx, code, ident, models.FailureValidation), fmt.Errorf("load coupon: %w", err)
	}
	if coupon == nil {
		return s.reject(ctx, code, ident, models.FailureNotFound), nil
	}

	now := s.now()
	switch {
	case !coupon.IsActive:
		return s.reject(ctx, code, ident, models.FailureInactive), nil
	case now.Before(coupon.ValidFrom):
		return s.reject(ctx, code, ident, models.FailureNotStarted), nil
	case now.After(coupon.ValidUntil):
		return s.reject(ctx, code, ident, models.FailureExpired), nil
	case coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit:
		return s.reject(ctx, code, ident, models.FailureLimitReached), nil
	}

	// Per-user limits apply to authenticated identities only; guests are
	// bounded by the attempt log and the coupon's global limit.
	if ident != nil && coupon.PerUserLimit > 0 {
		used, err := s.usages.CountForUser(ctx, coupon.ID, ident.ID)
		if err != nil {
			return s.reject(ctx, code, ident, models.FailureValidation), fmt.Errorf("count user usages: %w", err)
		}
		if used >= coupon.PerUserLimit {
			return s.reject(ctx, code, ident, models.FailureUserLimitReached), nil
		}
	}

	if cartTotal.LessThan(coupon.MinPurchaseAmount) {
		return s.reject(ctx, code, ident, models.FailureMinPurchase), nil
	}
	if itemCount < coupon.MinItemCount {
		return s.reject(ctx, code, ident, models.FailureMinItems), nil
	}

	discount := ComputeDiscount(coupon, cartTotal)
	_ = s.logAttempt(ctx, code, ident, true, "")

	return models.ValidationResult{
		Valid:      true,
		Coupon:     coupon,
		Discount:   discount,
		FinalTotal: cartTotal.Sub(discount),
	}, nil
}

// Apply validates and pins the coupon to the session. Re-applying the same
// code recomputes the discount rather than stacking it.
func (s *CouponService) Apply(ctx context.Context, sessionID, code string, cartTotal decimal.Decimal, ident *models.Identity, itemCount int) (models.ValidationResult, error) {
	result, err := s.Validate(ctx, code, cartTotal, ident, itemCount)
	if err != nil || !result.Valid {
		return result, err
	}

	ac := session.AppliedCoupon{
		Code:      result.Coupon.Code,
		Discount:  result.Discount,
		AppliedAt: s.now(),
	}
	if err := s.sessions.Set(ctx, sessionID, ac); err != nil {
		return s.reject(ctx, code, ident, models.FailureValidation), fmt.Errorf("pin coupon to session: %w", err)
	}
	return result, nil
}

type RedeemRequest struct {
	OrderID   string
	SessionID string
	// Code overrides the session's applied coupon when set.
	Code      string
	CartTotal decimal.Decimal
	ItemCount int
	Identity  *models.Identity
	ClientIP  string
	UserAgent string
}

// Redeem is the order-confirmation write and the only place usage counters
// become authoritative. It moves the global counter under the coupon row
// lock, enforces the per-user limit, and records the immutable usage row,
// all in one transaction.
func (s *CouponService) Redeem(ctx context.Context, req RedeemRequest) (*models.CouponUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	code := models.NormalizeCode(req.Code)
	if code == "" {
		applied, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("read session coupon: %w", err)
		}
		if applied == nil {
			return nil, ErrNoAppliedCoupon
		}
		code = applied.Code
	}

	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load coupon: %w", err)
	}
	if coupon == nil {
		return nil, db.ErrCouponNotFound
	}

	discount := ComputeDiscount(coupon, req.CartTotal)
	usage := &models.CouponUsage{
		CouponID:   coupon.ID,
		OrderID:    req.OrderID,
		Discount:   discount,
		CartTotal:  req.CartTotal,
		FinalTotal: req.CartTotal.Sub(discount),
		ClientIP:   req.ClientIP,
		UserAgent:  req.UserAgent,
	}
	if req.Identity != nil {
		uid := req.Identity.ID
		usage.UserID = &uid
	}

	err = s.runTx(ctx, func(tx *sql.Tx) error {
		used, limit, err := s.coupons.LockForRedeem(ctx, tx, coupon.ID)
		if err != nil {
			return err
		}
		if limit > 0 && used >= limit {
			return db.ErrCouponExhausted
		}

		if req.Identity != nil && coupon.PerUserLimit > 0 {
			n, err := s.usages.CountForUserTx(ctx, tx, coupon.ID, req.Identity.ID)
			if err != nil {
				return err
			}
			if n >= coupon.PerUserLimit {
				return db.ErrUserLimitReached
			}
		}

		if err := s.coupons.ConsumeUsage(ctx, tx, coupon.ID); err != nil {
			return err
		}
		return s.usages.Insert(ctx, tx, usage)
	})
	if err != nil {
		return nil, err
	}

	// The session's applied coupon is spent; clearing it is best-effort.
	_ = s.sessions.Clear(ctx, req.SessionID)

	return usage, nil
}

// ComputeDiscount never exceeds the cart subtotal and caps percentage
// coupons at their maximum discount when one is set.
func ComputeDiscount(c *models.Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	if cartTotal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case models.DiscountPercentage:
		discount = cartTotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
			discount = *c.MaxDiscountAmount
		}
	case models.DiscountFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}

	discount = discount.Round(2)
	if discount.GreaterThan(cartTotal) {
		discount = cartTotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// reject logs the failed attempt and builds the caller-facing result. The
// attempt write is deliberately best-effort: a logging failure must never
// turn a validation verdict into an error.
func (s *CouponService) reject(ctx context.Context, code string, ident *models.Identity, kind models.FailureKind) models.ValidationResult {
	_ = s.logAttempt(ctx, code, ident, false, string(kind))
	return models.ValidationResult{
		Valid:   false,
		Failure: kind,
		Message: kind.Message(),
	}
}

func (s *CouponService) logAttempt(ctx context.Context, code string, ident *models.Identity, success bool, reason string) error {
	a := &models.CouponAttempt{
		Code:    code,
		Success: success,
		Reason:  reason,
	}
	if ident != nil {
		uid := ident.ID
		a.UserID = &uid
	}
	return s.attempts.Log(ctx, a)
}
