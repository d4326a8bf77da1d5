package models

import "github.com/shopspring/decimal"

// FailureKind is the closed set of validation outcomes surfaced to callers.
// The UI renders Message() verbatim and must not invent its own wording.
type FailureKind string

const (
	FailureNotFound         FailureKind = "NOT_FOUND"
	FailureInactive         FailureKind = "INACTIVE"
	FailureNotStarted       FailureKind = "NOT_STARTED"
	FailureExpired          FailureKind = "EXPIRED"
	FailureLimitReached     FailureKind = "LIMIT_REACHED"
	FailureUserLimitReached FailureKind = "USER_LIMIT_REACHED"
	FailureMinPurchase      FailureKind = "MIN_PURCHASE_NOT_MET"
	FailureMinItems         FailureKind = "MIN_ITEMS_NOT_MET"
	FailureValidation       FailureKind = "VALIDATION_ERROR"
)

var failureMessages = map[FailureKind]string{
	FailureNotFound:         "That coupon code does not exist.",
	FailureInactive:         "This coupon is no longer active.",
	FailureNotStarted:       "This coupon is not valid yet.",
	FailureExpired:          "This coupon has expired.",
	FailureLimitReached:     "This coupon has reached its usage limit.",
	FailureUserLimitReached: "You have already used this coupon the maximum number of times.",
	FailureMinPurchase:      "Your cart total does not meet the minimum purchase for this coupon.",
	FailureMinItems:         "Your cart does not have enough items for this coupon.",
	FailureValidation:       "We could not validate this coupon right now. Please try again.",
}

func (k FailureKind) Message() string {
	if msg, ok := failureMessages[k]; ok {
		return msg
	}
	return failureMessages[FailureValidation]
}

type ValidationResult struct {
	Valid      bool            `json:"valid"`
	Coupon     *Coupon         `json:"coupon,omitempty"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"final_total"`
	Failure    FailureKind     `json:"failure,omitempty"`
	Message    string          `json:"message,omitempty"`
}
