package errors

import (
	"errors"
	"fmt"
)

// Domain errors for the coin economy
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrDailyBonusAlreadyClaimed = errors.New("daily bonus already claimed in the last 24 hours")
	ErrInvalidCode              = errors.New("invalid code")
	ErrKeyExpiredOrExhausted    = errors.New("key is expired or exhausted")
	ErrKeyAlreadyExists         = errors.New("redemption key already exists")
	ErrKeyNotFound              = errors.New("redemption key not found")
	ErrConflict                 = errors.New("concurrent modification conflict")
	ErrUnauthorized             = errors.New("caller is not authorized")
	ErrCommissionNotFound       = errors.New("commission not found")
	ErrInvalidPercent           = errors.New("commission percent must be between 0 and 100")
	ErrSelfReferral             = errors.New("self-referral is not allowed")
	ErrReferralCapExceeded      = errors.New("monthly referral cap exceeded")
	ErrCodeAlreadyApplied       = errors.New("account has already applied a referral code")
)

// TrainerPayout is the outcome of a single trainer's share in a course-sale
// split. Failed payouts carry the error text so callers can reconcile which
// trainers were actually paid.
type TrainerPayout struct {
	TrainerID string `json:"trainer_id"`
	Percent   int32  `json:"percent"`
	Coins     int64  `json:"coins"`
	Paid      bool   `json:"paid"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PartialPayoutError reports a commission split where some trainer payouts
// succeeded and others did not. Payouts already made are not rolled back.
type PartialPayoutError struct {
	CourseID string
	Payouts  []TrainerPayout
}

func (e *PartialPayoutError) Error() string {
	failed := 0
	for _, p := range e.Payouts {
		if !p.Paid && !p.Skipped {
			failed++
		}
	}
	return fmt.Sprintf("partial commission payment for course %s: %d of %d payouts failed", e.CourseID, failed, len(e.Payouts))
}
