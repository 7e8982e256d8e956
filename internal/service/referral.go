package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/repository"
	"github.com/tatidance/economy/pkg/config"
	errs "github.com/tatidance/economy/pkg/errors"
)

// ReferralService drives referral records through their lifecycle and pays
// the signup and first-purchase bonuses exactly once each. The conditional
// status transitions in the repository are the payment gates: a record is
// claimed first, then paid.
type ReferralService struct {
	referrals repository.ReferralRepository
	economy   *EconomyService
	cfg       config.Economy
	logger    *slog.Logger
}

// NewReferralService creates a new referral service.
func NewReferralService(referrals repository.ReferralRepository, economy *EconomyService, cfg config.Economy, logger *slog.Logger) *ReferralService {
	return &ReferralService{
		referrals: referrals,
		economy:   economy,
		cfg:       cfg,
		logger:    logger,
	}
}

// GetOrCreateCode returns the user's referral code, generating one on first
// call. Code strings derive from the user name plus a random suffix.
func (s *ReferralService) GetOrCreateCode(ctx context.Context, userID, userName string) (*model.ReferralCode, error) {
	existing, err := s.referrals.GetCodeByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// Retry on suffix collision; the unique index is the arbiter.
	for attempt := 0; attempt < 3; attempt++ {
		rc := &model.ReferralCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			UserName:  userName,
			Code:      generateReferralCode(userName),
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
		err := s.referrals.CreateCode(ctx, rc)
		if err == nil {
			return rc, nil
		}
		if err != errs.ErrConflict {
			return nil, err
		}
		// Another request may have created this user's code concurrently.
		if existing, lookupErr := s.referrals.GetCodeByUser(ctx, userID); lookupErr == nil && existing != nil {
			return existing, nil
		}
	}

	return nil, errs.ErrConflict
}

// ApplyCode records that a new account signed up with a referral code,
// creating a pending referral. Self-referral, inactive codes, a second code
// use by the same account and the referrer's monthly cap are all rejected
// before anything is written.
func (s *ReferralService) ApplyCode(ctx context.Context, req *model.ApplyCodeRequest) (*model.Referral, error) {
	code := NormalizeCode(req.Code)

	rc, err := s.referrals.GetCodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !rc.IsActive {
		return nil, errs.ErrInvalidCode
	}
	if rc.UserID == req.UserID {
		return nil, errs.ErrSelfReferral
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := s.referrals.CountByReferrerSince(ctx, rc.UserID, monthStart)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxReferralsPerMonth > 0 && count >= int64(s.cfg.MaxReferralsPerMonth) {
		return nil, errs.ErrReferralCapExceeded
	}

	ref := &model.Referral{
		ID:                uuid.NewString(),
		ReferrerID:        rc.UserID,
		ReferredUserID:    req.UserID,
		ReferredUserName:  req.UserName,
		ReferredUserEmail: req.UserEmail,
		Code:              code,
		Status:            model.ReferralPending,
		CreatedAt:         now,
	}
	if err := s.referrals.CreateReferral(ctx, ref); err != nil {
		return nil, err
	}

	return ref, nil
}

// CompleteAfterVerification pays the signup bonuses for the caller's pending
// referral and moves it to verified. Finding no pending record is a silent
// no-op (nil, nil): the record was already transitioned or never existed, and
// repeated verification checks must not pay twice.
func (s *ReferralService) CompleteAfterVerification(ctx context.Context, userID string) (*model.Referral, error) {
	ref, err := s.referrals.ClaimPendingForVerification(ctx, userID,
		s.cfg.ReferrerRewardOnSignup, s.cfg.ReferredRewardOnSignup, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}

	s.payBonus(ctx, ref, "signup",
		s.cfg.ReferrerRewardOnSignup, s.cfg.ReferredRewardOnSignup)

	return ref, nil
}

// CheckAndAwardFirstPurchaseBonus pays the first-purchase bonuses if the
// user has a verified, unpaid referral. It is called on every purchase and
// self-gates through the paid flag, so later purchases are no-ops.
func (s *ReferralService) CheckAndAwardFirstPurchaseBonus(ctx context.Context, userID string) (*model.Referral, error) {
	ref, err := s.referrals.ClaimFirstPurchaseBonus(ctx, userID,
		s.cfg.FirstPurchaseBonusReferrer, s.cfg.FirstPurchaseBonusReferred, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}

	s.payBonus(ctx, ref, "first purchase",
		s.cfg.FirstPurchaseBonusReferrer, s.cfg.FirstPurchaseBonusReferred)

	return ref, nil
}

// payBonus grants both parties after a claim succeeded. The claim already
// committed, so grant failures are reconciliation cases, not rollbacks.
func (s *ReferralService) payBonus(ctx context.Context, ref *model.Referral, stage string, referrerAmount, referredAmount int64) {
	if referrerAmount > 0 {
		desc := fmt.Sprintf("Referral %s bonus for inviting %s", stage, ref.ReferredUserName)
		if _, _, err := s.economy.Grant(ctx, ref.ReferrerID, referrerAmount, model.TxReferralBonus, ref.ID, desc); err != nil {
			s.logger.Error("referral bonus grant failed, needs reconciliation",
				"referral_id", ref.ID, "stage", stage, "account_id", ref.ReferrerID, "amount", referrerAmount, "error", err)
		}
	}
	if referredAmount > 0 {
		desc := fmt.Sprintf("Referral %s bonus", stage)
		if _, _, err := s.economy.Grant(ctx, ref.ReferredUserID, referredAmount, model.TxReferralBonus, ref.ID, desc); err != nil {
			s.logger.Error("referral bonus grant failed, needs reconciliation",
				"referral_id", ref.ID, "stage", stage, "account_id", ref.ReferredUserID, "amount", referredAmount, "error", err)
		}
	}
}

// ExpireStale transitions pending referrals older than the configured expiry
// to expired. Exposed for a scheduled sweep; nothing calls it on a timer by
// default.
func (s *ReferralService) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.ReferralExpiryDays)
	return s.referrals.ExpireStale(ctx, cutoff)
}

// Stats summarizes a referrer's records.
func (s *ReferralService) Stats(ctx context.Context, referrerID string) (*model.ReferralStats, error) {
	return s.referrals.StatsForReferrer(ctx, referrerID)
}

// generateReferralCode builds a NAME-1234 style code. Short or non-ASCII
// names fall back to a fixed prefix.
func generateReferralCode(userName string) string {
	prefix := strings.Builder{}
	for _, r := range strings.ToUpper(userName) {
		if r >= 'A' && r <= 'Z' {
			prefix.WriteRune(r)
			if prefix.Len() == 4 {
				break
			}
		}
	}
	p := prefix.String()
	if len(p) < 2 {
		p = "DANCE"
	}

	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return p + "-" + raw[:4]
}
