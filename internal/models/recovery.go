package models

import "time"

const (
	RecoveryStatusPending   = "pending"
	RecoveryStatusEmailSent = "email_sent"
	RecoveryStatusRecovered = "recovered"
	RecoveryStatusExpired   = "expired"
)

// RecoveryRecord tracks one abandoned cart through the notification
// schedule. At most one exists per cart (unique cart_id).
type RecoveryRecord struct {
	ID          int64      `json:"id"`
	CartID      int64      `json:"cart_id"`
	Email       string     `json:"email"`
	Token       string     `json:"token"`
	CouponCode  string     `json:"coupon_code"`
	AbandonedAt time.Time  `json:"abandoned_at"`
	Status      string     `json:"status"`
	EmailsSent  int        `json:"emails_sent"`
	LastEmailAt *time.Time `json:"last_email_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
