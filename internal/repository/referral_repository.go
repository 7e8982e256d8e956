package repository

import (
	"context"
	"time"

	"github.com/tatidance/economy/internal/model"
)

// ReferralRepository stores referral codes and referral records. The two
// claim operations are conditional writes: they transition a record's status
// only if it is still in the expected state, which makes them the
// exactly-once gates for the signup and first-purchase bonuses.
type ReferralRepository interface {
	CreateCode(ctx context.Context, rc *model.ReferralCode) error
	GetCodeByUser(ctx context.Context, userID string) (*model.ReferralCode, error)

	// GetCodeByCode looks up a code string. Fails with ErrInvalidCode.
	GetCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error)

	// CreateReferral inserts a pending record. Fails with
	// ErrCodeAlreadyApplied when the referred account already has one.
	CreateReferral(ctx context.Context, r *model.Referral) error

	// CountByReferrerSince counts a referrer's records created at or after
	// since, for the monthly cap.
	CountByReferrerSince(ctx context.Context, referrerID string, since time.Time) (int64, error)

	// ClaimPendingForVerification transitions the referred user's pending
	// record to verified and records the signup reward amounts. Returns
	// (nil, nil) when no pending record exists, either already transitioned
	// or never referred.
	ClaimPendingForVerification(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error)

	// ClaimFirstPurchaseBonus transitions the referred user's verified,
	// unpaid record to completed, setting the paid flag and purchase date.
	// Returns (nil, nil) when no eligible record exists.
	ClaimFirstPurchaseBonus(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error)

	// ExpireStale marks pending records created before the cutoff as expired
	// and returns how many were transitioned.
	ExpireStale(ctx context.Context, before time.Time) (int64, error)

	// StatsForReferrer summarizes a referrer's records.
	StatsForReferrer(ctx context.Context, referrerID string) (*model.ReferralStats, error)
}
