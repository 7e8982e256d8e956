package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/repository/memory"
	"github.com/tatidance/economy/pkg/config"
	errs "github.com/tatidance/economy/pkg/errors"
)

func newTestReferral(t *testing.T) (*ReferralService, *memory.ReferralRepository, *memory.WalletRepository) {
	t.Helper()
	wallets := memory.NewWalletRepository()
	keys := memory.NewKeyRepository()
	caps := StaticAdminSet{"admin1": true}
	economy := NewEconomyService(wallets, keys, caps, nopSink{}, 5, testLogger())
	referrals := memory.NewReferralRepository()
	cfg := config.DefaultEconomy()
	cfg.MaxReferralsPerMonth = 3
	svc := NewReferralService(referrals, economy, cfg, testLogger())
	return svc, referrals, wallets
}

func TestGetOrCreateCode(t *testing.T) {
	svc, _, _ := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	require.True(t, rc.IsActive)
	require.Contains(t, rc.Code, "TATI-")

	// Second call returns the same code
	again, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	require.Equal(t, rc.Code, again.Code)

	// Short name falls back to the fixed prefix
	rc2, err := svc.GetOrCreateCode(ctx, "u2", "李")
	require.NoError(t, err)
	require.Contains(t, rc2.Code, "DANCE-")
}

func TestApplyCodeValidation(t *testing.T) {
	svc, _, _ := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)

	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: "GHOST-0000", UserID: "newbie"})
	require.ErrorIs(t, err, errs.ErrInvalidCode)

	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "tati"})
	require.ErrorIs(t, err, errs.ErrSelfReferral)

	ref, err := svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "newbie", UserName: "New User"})
	require.NoError(t, err)
	require.Equal(t, model.ReferralPending, ref.Status)
	require.Equal(t, "tati", ref.ReferrerID)
	require.False(t, ref.FirstPurchaseBonusPaid)

	// One code use per new account, ever
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "newbie"})
	require.ErrorIs(t, err, errs.ErrCodeAlreadyApplied)
}

func TestApplyCodeMonthlyCap(t *testing.T) {
	svc, _, _ := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "user" + string(rune('a'+i))})
		require.NoError(t, err)
	}

	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "user-over-cap"})
	require.ErrorIs(t, err, errs.ErrReferralCapExceeded)
}

func TestCompleteAfterVerificationExactlyOnce(t *testing.T) {
	svc, _, wallets := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "newbie", UserName: "New User"})
	require.NoError(t, err)

	ref, err := svc.CompleteAfterVerification(ctx, "newbie")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, model.ReferralVerified, ref.Status)
	require.Equal(t, int64(3), wallets.Balance("tati"))
	require.Equal(t, int64(3), wallets.Balance("newbie"))

	// Repeated verification checks are silent no-ops, not errors
	ref, err = svc.CompleteAfterVerification(ctx, "newbie")
	require.NoError(t, err)
	require.Nil(t, ref)
	require.Equal(t, int64(3), wallets.Balance("tati"))
	require.Equal(t, int64(3), wallets.Balance("newbie"))

	// A user with no referral at all is also a no-op
	ref, err = svc.CompleteAfterVerification(ctx, "unreferred")
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestCompleteAfterVerificationConcurrent(t *testing.T) {
	svc, _, wallets := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "newbie"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CompleteAfterVerification(ctx, "newbie")
		}()
	}
	wg.Wait()

	require.Equal(t, int64(3), wallets.Balance("tati"))
	require.Equal(t, int64(3), wallets.Balance("newbie"))
}

func TestFirstPurchaseBonusExactlyOnce(t *testing.T) {
	svc, _, wallets := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "newbie"})
	require.NoError(t, err)

	// A purchase before verification pays nothing: the referral is pending
	ref, err := svc.CheckAndAwardFirstPurchaseBonus(ctx, "newbie")
	require.NoError(t, err)
	require.Nil(t, ref)

	_, err = svc.CompleteAfterVerification(ctx, "newbie")
	require.NoError(t, err)

	ref, err = svc.CheckAndAwardFirstPurchaseBonus(ctx, "newbie")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, model.ReferralCompleted, ref.Status)
	require.True(t, ref.FirstPurchaseBonusPaid)
	require.NotNil(t, ref.FirstPurchaseDate)

	// 3 signup + 10 first-purchase for each party
	require.Equal(t, int64(13), wallets.Balance("tati"))
	require.Equal(t, int64(13), wallets.Balance("newbie"))

	// A second purchase triggers the same check but pays nothing more
	ref, err = svc.CheckAndAwardFirstPurchaseBonus(ctx, "newbie")
	require.NoError(t, err)
	require.Nil(t, ref)
	require.Equal(t, int64(13), wallets.Balance("tati"))
	require.Equal(t, int64(13), wallets.Balance("newbie"))
}

func TestExpireStale(t *testing.T) {
	svc, referrals, _ := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "old-newbie"})
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "fresh-newbie"})
	require.NoError(t, err)

	// Age one record past the expiry window
	referrals.AgeReferral("old-newbie", time.Now().UTC().AddDate(0, 0, -31))

	expired, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	// An expired referral no longer pays out
	ref, err := svc.CompleteAfterVerification(ctx, "old-newbie")
	require.NoError(t, err)
	require.Nil(t, ref)

	// The fresh one is untouched
	ref, err = svc.CompleteAfterVerification(ctx, "fresh-newbie")
	require.NoError(t, err)
	require.NotNil(t, ref)
}

func TestReferralStats(t *testing.T) {
	svc, _, _ := newTestReferral(t)
	ctx := context.Background()

	rc, err := svc.GetOrCreateCode(ctx, "tati", "Tatiana")
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ApplyCode(ctx, &model.ApplyCodeRequest{Code: rc.Code, UserID: "u2"})
	require.NoError(t, err)
	_, err = svc.CompleteAfterVerification(ctx, "u1")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "tati")
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalReferrals)
	require.Equal(t, int64(1), stats.PendingReferrals)
}
