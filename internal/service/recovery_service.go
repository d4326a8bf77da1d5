package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/internal/notify"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

// ErrInvalidRecoveryLink covers every failed recovery visit: unknown or
// mismatched token, expired record, already-recovered cart. One outcome,
// no detail leaked, no mutation performed.
var ErrInvalidRecoveryLink = errors.New("invalid or expired link")

type CartStore interface {
	GetByID(ctx context.Context, id int64) (*models.Cart, error)
	ListStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error)
	SetStatus(ctx context.Context, cartID int64, from, to string) (bool, error)
	Reactivate(ctx context.Context, cartID int64, sessionID string) error
}

type RecoveryStore interface {
	Create(ctx context.Context, rec *models.RecoveryRecord) (bool, error)
	GetByToken(ctx context.Context, token string) (*models.RecoveryRecord, error)
	ListSendable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.RecoveryRecord, error)
	MarkEmailSent(ctx context.Context, id int64, expectedSent int, at time.Time) (bool, error)
	MarkRecovered(ctx context.Context, id int64) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	PruneExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CouponMinter interface {
	Create(ctx context.Context, c *models.Coupon) error
}

// RecoveryPolicy is the timing policy for abandonment detection and the
// notification schedule. Offsets are measured from the abandonment time;
// len(SendOffsets) is the attempt cap.
type RecoveryPolicy struct {
	AbandonAfter  time.Duration
	SendOffsets   []time.Duration
	RecoveryTTL   time.Duration
	CouponPercent int
	PruneAfter    time.Duration
	BatchSize     int
	BaseURL       string
}

func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		AbandonAfter:  2 * time.Hour,
		SendOffsets:   []time.Duration{time.Hour, 24 * time.Hour, 72 * time.Hour},
		RecoveryTTL:   7 * 24 * time.Hour,
		CouponPercent: 10,
		PruneAfter:    30 * 24 * time.Hour,
		BatchSize:     200,
		BaseURL:       "https://eartesana.com",
	}
}

type RecoveryService struct {
	carts      CartStore
	recoveries RecoveryStore
	coupons    CouponMinter
	dispatcher notify.Dispatcher
	policy     RecoveryPolicy
	now        func() time.Time
}

func NewRecoveryService(carts CartStore, recoveries RecoveryStore, coupons CouponMinter, dispatcher notify.Dispatcher, policy RecoveryPolicy) *RecoveryService {
	if len(policy.SendOffsets) == 0 {
		policy.SendOffsets = DefaultRecoveryPolicy().SendOffsets
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultRecoveryPolicy().BatchSize
	}
	return &RecoveryService{
		carts:      carts,
		recoveries: recoveries,
		coupons:    coupons,
		dispatcher: dispatcher,
		policy:     policy,
		now:        time.Now,
	}
}

type SweepStats struct {
	Abandoned  int   `json:"abandoned"`
	Enrolled   int   `json:"enrolled"`
	EmailsSent int   `json:"emails_sent"`
	Expired    int64 `json:"expired"`
	Pruned     int64 `json:"pruned"`
}

// Sweep is the periodic batch pass: detect newly-abandoned carts, enroll
// them for recovery, advance the notification schedule, then expire and
// prune old records. Each record is processed independently; a failure
// skips that record and the next sweep naturally retries.
func (s *RecoveryService) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now()

	cutoff := now.Add(-s.policy.AbandonAfter)
	stale, err := s.carts.ListStaleActive(ctx, cutoff, s.policy.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale carts: %w", err)
	}

	for _, cart := range stale {
		moved, err := s.carts.SetStatus(ctx, cart.ID, models.CartStatusActive, models.CartStatusAbandoned)
		if err != nil {
			log.Printf("sweep: abandon cart %d: %v", cart.ID, err)
			continue
		}
		if !moved {
			// Another sweep instance got there first.
			continue
		}
		stats.Abandoned++

		if err := s.enroll(ctx, &cart, now); err != nil {
			log.Printf("sweep: enroll cart %d: %v", cart.ID, err)
			continue
		}
		if cart.ContactEmail != "" {
			stats.Enrolled++
		}
	}

	sent, err := s.scheduleSends(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.EmailsSent = sent

	expired, err := s.recoveries.ExpireDue(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("expire recoveries: %w", err)
	}
	stats.Expired = expired

	pruned, err := s.recoveries.PruneExpiredBefore(ctx, now.Add(-s.policy.PruneAfter))
	if err != nil {
		return stats, fmt.Errorf("prune recoveries: %w", err)
	}
	stats.Pruned = pruned

	return stats, nil
}

// enroll mints the single-use recovery coupon and creates the record.
// The unique cart_id insert keeps repeated detections from enrolling a
// cart twice.
func (s *RecoveryService) enroll(ctx context.Context, cart *models.Cart, now time.Time) error {
	if cart.ContactEmail == "" {
		return nil
	}

	coupon := &models.Coupon{
		Code:          recoveryCouponCode(),
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(int64(s.policy.CouponPercent)),
		ValidFrom:     now,
		ValidUntil:    now.Add(s.policy.RecoveryTTL),
		UsageLimit:    1,
		PerUserLimit:  1,
		IsActive:      true,
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		return fmt.Errorf("mint recovery coupon: %w", err)
	}

	rec := &models.RecoveryRecord{
		CartID:      cart.ID,
		Email:       cart.ContactEmail,
		Token:       uuid.NewString(),
		CouponCode:  coupon.Code,
		AbandonedAt: now,
		ExpiresAt:   now.Add(s.policy.RecoveryTTL),
	}
	if _, err := s.recoveries.Create(ctx, rec); err != nil {
		return fmt.Errorf("create recovery record: %w", err)
	}
	return nil
}

// scheduleSends issues at most one notification per record per sweep.
// Attempt N (0-based) is due once now >= abandoned_at + SendOffsets[N];
// the compare-and-increment on emails_sent keeps concurrent sweeps from
// double-sending, and a failed dispatch leaves the record untouched so
// the next sweep retries without advancing the count.
func (s *RecoveryService) scheduleSends(ctx context.Context, now time.Time) (int, error) {
	recs, err := s.recoveries.ListSendable(ctx, now, len(s.policy.SendOffsets), s.policy.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list sendable recoveries: %w", err)
	}

	sent := 0
	for _, rec := range recs {
		n := rec.EmailsSent
		if n >= len(s.policy.SendOffsets) {
			continue
		}
		if now.Before(rec.AbandonedAt.Add(s.policy.SendOffsets[n])) {
			continue
		}

		attempt := n + 1
		data := map[string]string{
			"recovery_url": s.recoveryURL(rec),
			"coupon_code":  rec.CouponCode,
		}
		if err := s.dispatcher.Send(ctx, rec.Email, notify.RecoverySubject(attempt), notify.RecoveryTemplate(attempt), data); err != nil {
			log.Printf("sweep: send recovery email for cart %d: %v", rec.CartID, err)
			continue
		}

		advanced, err := s.recoveries.MarkEmailSent(ctx, rec.ID, n, now)
		if err != nil {
			log.Printf("sweep: mark email sent for cart %d: %v", rec.CartID, err)
			continue
		}
		if advanced {
			sent++
		}
	}
	return sent, nil
}

func (s *RecoveryService) recoveryURL(rec models.RecoveryRecord) string {
	q := url.Values{}
	q.Set("cart_id", strconv.FormatInt(rec.CartID, 10))
	q.Set("token", rec.Token)
	if rec.CouponCode != "" {
		q.Set("coupon", rec.CouponCode)
	}
	return s.policy.BaseURL + "/cart/recover?" + q.Encode()
}

type RecoveryResult struct {
	Cart       *models.Cart `json:"cart"`
	CouponCode string       `json:"coupon_code,omitempty"`
}

// ProcessRecovery handles a recovery-link visit. Any mismatch, expiry or
// repeat visit fails closed with ErrInvalidRecoveryLink and no mutation;
// on success the cart returns to the active session and the record is
// marked recovered.
func (s *RecoveryService) ProcessRecovery(ctx context.Context, cartID int64, token, couponCode, sessionID string) (*RecoveryResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidRecoveryLink
	}

	rec, err := s.recoveries.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrRecoveryNotFound) {
			return nil, ErrInvalidRecoveryLink
		}
		return nil, fmt.Errorf("load recovery record: %w", err)
	}

	if rec.CartID != cartID {
		return nil, ErrInvalidRecoveryLink
	}
	if couponCode != "" && models.NormalizeCode(couponCode) != rec.CouponCode {
		return nil, ErrInvalidRecoveryLink
	}

	now := s.now()
	if now.After(rec.ExpiresAt) || rec.Status == models.RecoveryStatusExpired || rec.Status == models.RecoveryStatusRecovered {
		return nil, ErrInvalidRecoveryLink
	}

	cart, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, db.ErrCartNotFound) {
			return nil, ErrInvalidRecoveryLink
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.Status == models.CartStatusConverted {
		return nil, ErrInvalidRecoveryLink
	}

	moved, err := s.recoveries.MarkRecovered(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("mark recovery: %w", err)
	}
	if !moved {
		return nil, ErrInvalidRecoveryLink
	}

	if err := s.carts.Reactivate(ctx, cartID, sessionID); err != nil {
		return nil, fmt.Errorf("reactivate cart: %w", err)
	}
	cart.Status = models.CartStatusActive
	cart.SessionID = sessionID

	return &RecoveryResult{
		Cart:       cart,
		CouponCode: rec.CouponCode,
	}, nil
}

func recoveryCouponCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "COMEBACK-" + suffix
}
