package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/internal/session"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

// --- fakes ---

type fakeCouponStore struct {
	coupons map[string]*models.Coupon
	getErr  error
}

func (f *fakeCouponStore) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.coupons[models.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (f *fakeCouponStore) LockForRedeem(_ context.Context, _ *sql.Tx, couponID int64) (int, int, error) {
	for _, c := range f.coupons {
		if c.ID == couponID {
			return c.UsedCount, c.UsageLimit, nil
		}
	}
	return 0, 0, db.ErrCouponNotFound
}

func (f *fakeCouponStore) ConsumeUsage(_ context.Context, _ *sql.Tx, couponID int64) error {
	for _, c := range f.coupons {
		if c.ID == couponID {
			if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
				return db.ErrCouponExhausted
			}
			c.UsedCount++
			return nil
		}
	}
	return db.ErrCouponNotFound
}

type fakeUsageStore struct {
	counts   map[string]int
	inserted []*models.CouponUsage
}

func usageKey(couponID int64, userID string) string {
	return userID + "#" + strconv.FormatInt(couponID, 10)
}

func (f *fakeUsageStore) CountForUser(_ context.Context, couponID int64, userID string) (int, error) {
	return f.counts[usageKey(couponID, userID)], nil
}

func (f *fakeUsageStore) CountForUserTx(_ context.Context, _ *sql.Tx, couponID int64, userID string) (int, error) {
	return f.counts[usageKey(couponID, userID)], nil
}

func (f *fakeUsageStore) Insert(_ context.Context, _ *sql.Tx, u *models.CouponUsage) error {
	f.inserted = append(f.inserted, u)
	if u.UserID != nil {
		f.counts[usageKey(u.CouponID, *u.UserID)]++
	}
	return nil
}

type fakeAttemptStore struct {
	attempts []models.CouponAttempt
	err      error
}

func (f *fakeAttemptStore) Log(_ context.Context, a *models.CouponAttempt) error {
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, *a)
	return nil
}

// --- helpers ---

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validCoupon() *models.Coupon {
	return &models.Coupon{
		ID:            1,
		Code:          "SPRING10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: dec("10"),
		ValidFrom:     testNow.Add(-24 * time.Hour),
		ValidUntil:    testNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func newTestService(coupons *fakeCouponStore, usages *fakeUsageStore, attempts *fakeAttemptStore) *CouponService {
	return &CouponService{
		coupons:  coupons,
		usages:   usages,
		attempts: attempts,
		sessions: session.NewMemoryStore(),
		runTx: func(ctx context.Context, fn func(*sql.Tx) error) error {
			return fn(nil)
		},
		now: func() time.Time { return testNow },
	}
}

func serviceWith(coupon *models.Coupon) (*CouponService, *fakeCouponStore, *fakeUsageStore, *fakeAttemptStore) {
	fc := &fakeCouponStore{coupons: map[string]*models.Coupon{}}
	if coupon != nil {
		fc.coupons[coupon.Code] = coupon
	}
	fu := &fakeUsageStore{counts: map[string]int{}}
	fa := &fakeAttemptStore{}
	return newTestService(fc, fu, fa), fc, fu, fa
}

// --- validation chain ---

func TestValidateFailureOrder(t *testing.T) {
	user := &models.Identity{ID: "u-1"}

	tests := []struct {
		name      string
		mutate    func(c *models.Coupon)
		cartTotal string
		itemCount int
		ident     *models.Identity
		userUsed  int
		want      models.FailureKind
	}{
		{
			name:   "inactive",
			mutate: func(c *models.Coupon) { c.IsActive = false },
			want:   models.FailureInactive,
		},
		{
			name:   "not started",
			mutate: func(c *models.Coupon) { c.ValidFrom = testNow.Add(time.Hour) },
			want:   models.FailureNotStarted,
		},
		{
			name:   "expired",
			mutate: func(c *models.Coupon) { c.ValidUntil = testNow.Add(-time.Hour) },
			want:   models.FailureExpired,
		},
		{
			name: "global limit reached",
			mutate: func(c *models.Coupon) {
				c.UsageLimit = 5
				c.UsedCount = 5
			},
			want: models.FailureLimitReached,
		},
		{
			name:     "per-user limit reached",
			mutate:   func(c *models.Coupon) { c.PerUserLimit = 1 },
			ident:    user,
			userUsed: 1,
			want:     models.FailureUserLimitReached,
		},
		{
			name:      "minimum purchase not met",
			mutate:    func(c *models.Coupon) { c.MinPurchaseAmount = dec("50") },
			cartTotal: "49.99",
			want:      models.FailureMinPurchase,
		},
		{
			name:      "minimum items not met",
			mutate:    func(c *models.Coupon) { c.MinItemCount = 3 },
			itemCount: 2,
			want:      models.FailureMinItems,
		},
		{
			// Expired AND under minimum purchase: the window check comes
			// first, so the caller sees EXPIRED.
			name: "expired wins over min purchase",
			mutate: func(c *models.Coupon) {
				c.ValidUntil = testNow.Add(-time.Hour)
				c.MinPurchaseAmount = dec("500")
			},
			cartTotal: "10",
			want:      models.FailureExpired,
		},
		{
			// Inactive AND expired: active flag is checked before the window.
			name: "inactive wins over expired",
			mutate: func(c *models.Coupon) {
				c.IsActive = false
				c.ValidUntil = testNow.Add(-time.Hour)
			},
			want: models.FailureInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := validCoupon()
			tt.mutate(coupon)
			svc, _, fu, _ := serviceWith(coupon)
			if tt.userUsed > 0 && tt.ident != nil {
				fu.counts[usageKey(coupon.ID, tt.ident.ID)] = tt.userUsed
			}

			total := dec("100")
			if tt.cartTotal != "" {
				total = dec(tt.cartTotal)
			}
			items := 5
			if tt.itemCount != 0 {
				items = tt.itemCount
			}

			result, err := svc.Validate(context.Background(), coupon.Code, total, tt.ident, items)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if result.Valid {
				t.Fatalf("expected invalid result")
			}
			if result.Failure != tt.want {
				t.Errorf("failure = %s, want %s", result.Failure, tt.want)
			}
			if result.Message != tt.want.Message() {
				t.Errorf("message = %q, want canonical %q", result.Message, tt.want.Message())
			}
		})
	}
}

func TestValidateUnknownCode(t *testing.T) {
	svc, _, _, _ := serviceWith(nil)

	result, err := svc.Validate(context.Background(), "NOPE", dec("100"), nil, 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid || result.Failure != models.FailureNotFound {
		t.Errorf("got %+v, want NOT_FOUND", result)
	}
}

func TestValidateCodeCaseInsensitive(t *testing.T) {
	svc, _, _, _ := serviceWith(validCoupon())

	result, err := svc.Validate(context.Background(), "  spring10 ", dec("100"), nil, 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Errorf("lowercase code rejected: %+v", result)
	}
}

func TestValidateStoreErrorFailsClosed(t *testing.T) {
	svc, fc, _, _ := serviceWith(validCoupon())
	fc.getErr = errors.New("connection refused")

	result, err := svc.Validate(context.Background(), "SPRING10", dec("100"), nil, 1)
	if err == nil {
		t.Fatalf("expected error")
	}
	if result.Valid || result.Failure != models.FailureValidation {
		t.Errorf("got %+v, want fail-closed VALIDATION_ERROR", result)
	}
}

func TestValidateGuestSkipsPerUserLimit(t *testing.T) {
	coupon := validCoupon()
	coupon.PerUserLimit = 1
	svc, _, _, _ := serviceWith(coupon)

	result, err := svc.Validate(context.Background(), coupon.Code, dec("100"), nil, 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Errorf("guest blocked by per-user limit: %+v", result)
	}
}

// --- discount computation ---

func TestComputeDiscount(t *testing.T) {
	max := dec("15")

	tests := []struct {
		name      string
		coupon    models.Coupon
		cartTotal string
		want      string
	}{
		{
			name:      "percentage",
			coupon:    models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: dec("10")},
			cartTotal: "200",
			want:      "20",
		},
		{
			name:      "percentage rounds to 2 decimals",
			coupon:    models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: dec("10")},
			cartTotal: "19.99",
			want:      "2.00",
		},
		{
			name:      "percentage capped by max discount",
			coupon:    models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: dec("50"), MaxDiscountAmount: &max},
			cartTotal: "400",
			want:      "15",
		},
		{
			name:      "fixed",
			coupon:    models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: dec("5")},
			cartTotal: "40",
			want:      "5",
		},
		{
			name:      "fixed never exceeds cart total",
			coupon:    models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: dec("50")},
			cartTotal: "29.95",
			want:      "29.95",
		},
		{
			name:      "zero cart total",
			coupon:    models.Coupon{DiscountType: models.DiscountPercentage, DiscountValue: dec("10")},
			cartTotal: "0",
			want:      "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(&tt.coupon, dec(tt.cartTotal))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ComputeDiscount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateFinalTotalNeverNegative(t *testing.T) {
	coupon := validCoupon()
	coupon.DiscountType = models.DiscountFixed
	coupon.DiscountValue = dec("999")
	svc, _, _, _ := serviceWith(coupon)

	result, err := svc.Validate(context.Background(), coupon.Code, dec("12.34"), nil, 1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid: %+v", result)
	}
	if result.Discount.GreaterThan(dec("12.34")) {
		t.Errorf("discount %s exceeds cart total", result.Discount)
	}
	if result.FinalTotal.IsNegative() {
		t.Errorf("final total negative: %s", result.FinalTotal)
	}
}

// --- attempt logging ---

func TestEveryValidationLogsOneAttempt(t *testing.T) {
	svc, _, _, fa := serviceWith(validCoupon())
	ctx := context.Background()

	_, _ = svc.Validate(ctx, "SPRING10", dec("100"), nil, 1)
	_, _ = svc.Validate(ctx, "MISSING", dec("100"), nil, 1)

	if len(fa.attempts) != 2 {
		t.Fatalf("attempts logged = %d, want 2", len(fa.attempts))
	}
	if !fa.attempts[0].Success || fa.attempts[0].Reason != "" {
		t.Errorf("first attempt = %+v, want success", fa.attempts[0])
	}
	if fa.attempts[1].Success || fa.attempts[1].Reason != string(models.FailureNotFound) {
		t.Errorf("second attempt = %+v, want NOT_FOUND failure", fa.attempts[1])
	}
}

func TestAttemptLogFailureIsNonFatal(t *testing.T) {
	svc, _, _, fa := serviceWith(validCoupon())
	fa.err = errors.New("attempt table locked")

	result, err := svc.Validate(context.Background(), "SPRING10", dec("100"), nil, 1)
	if err != nil {
		t.Fatalf("logging failure surfaced as validation error: %v", err)
	}
	if !result.Valid {
		t.Errorf("logging failure rejected a valid coupon: %+v", result)
	}
}

// --- counters only move at redeem ---

func TestValidateDoesNotConsumeUsage(t *testing.T) {
	coupon := validCoupon()
	coupon.UsageLimit = 1
	svc, fc, fu, _ := serviceWith(coupon)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := svc.Validate(ctx, coupon.Code, dec("100"), &models.Identity{ID: "u-1"}, 1)
		if err != nil || !result.Valid {
			t.Fatalf("validate %d: %v %+v", i, err, result)
		}
	}

	if fc.coupons[coupon.Code].UsedCount != 0 {
		t.Errorf("validation moved the global counter to %d", fc.coupons[coupon.Code].UsedCount)
	}
	if len(fu.inserted) != 0 {
		t.Errorf("validation wrote %d usage records", len(fu.inserted))
	}
}

func TestApplyIsIdempotentPerSession(t *testing.T) {
	svc, _, _, _ := serviceWith(validCoupon())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := svc.Apply(ctx, "sess-1", "SPRING10", dec("100"), nil, 1)
		if err != nil || !result.Valid {
			t.Fatalf("apply %d: %v %+v", i, err, result)
		}
	}

	applied, err := svc.sessions.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("session get: %v", err)
	}
	if applied == nil || !applied.Discount.Equal(dec("10")) {
		t.Errorf("re-apply changed pinned discount: %+v", applied)
	}
}

func TestRedeemConsumesOnceAndClearsSession(t *testing.T) {
	coupon := validCoupon()
	coupon.UsageLimit = 1
	svc, fc, fu, _ := serviceWith(coupon)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "sess-1", "SPRING10", dec("100"), nil, 1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	usage, err := svc.Redeem(ctx, RedeemRequest{
		OrderID:   "ord-1",
		SessionID: "sess-1",
		CartTotal: dec("100"),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !usage.Discount.Equal(dec("10")) || !usage.FinalTotal.Equal(dec("90")) {
		t.Errorf("usage = %+v", usage)
	}
	if fc.coupons["SPRING10"].UsedCount != 1 {
		t.Errorf("used count = %d, want 1", fc.coupons["SPRING10"].UsedCount)
	}
	if len(fu.inserted) != 1 {
		t.Errorf("usage records = %d, want 1", len(fu.inserted))
	}

	applied, _ := svc.sessions.Get(ctx, "sess-1")
	if applied != nil {
		t.Errorf("session still holds %+v after redeem", applied)
	}

	// The last unit is gone; the next redemption fails.
	_, err = svc.Redeem(ctx, RedeemRequest{OrderID: "ord-2", Code: "SPRING10", CartTotal: dec("100")})
	if !errors.Is(err, db.ErrCouponExhausted) {
		t.Errorf("second redeem err = %v, want ErrCouponExhausted", err)
	}
}

func TestRedeemEnforcesPerUserLimit(t *testing.T) {
	coupon := validCoupon()
	coupon.PerUserLimit = 1
	svc, _, fu, _ := serviceWith(coupon)
	ctx := context.Background()
	ident := &models.Identity{ID: "u-9"}

	if _, err := svc.Redeem(ctx, RedeemRequest{OrderID: "ord-1", Code: "SPRING10", CartTotal: dec("50"), Identity: ident}); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if fu.counts[usageKey(coupon.ID, ident.ID)] != 1 {
		t.Fatalf("per-user count not recorded")
	}

	_, err := svc.Redeem(ctx, RedeemRequest{OrderID: "ord-2", Code: "SPRING10", CartTotal: dec("50"), Identity: ident})
	if !errors.Is(err, db.ErrUserLimitReached) {
		t.Errorf("second redeem err = %v, want ErrUserLimitReached", err)
	}
}

func TestRedeemWithoutAppliedCoupon(t *testing.T) {
	svc, _, _, _ := serviceWith(validCoupon())

	_, err := svc.Redeem(context.Background(), RedeemRequest{OrderID: "ord-1", SessionID: "sess-unknown", CartTotal: dec("50")})
	if !errors.Is(err, ErrNoAppliedCoupon) {
		t.Errorf("err = %v, want ErrNoAppliedCoupon", err)
	}
}
