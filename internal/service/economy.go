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
	errs "github.com/tatidance/economy/pkg/errors"
	"github.com/tatidance/economy/pkg/notify"
)

const dailyBonusWindow = 24 * time.Hour

// CapabilityChecker answers whether an account holds the admin capability.
// Identity itself lives outside the economy core.
type CapabilityChecker interface {
	IsAdmin(accountID string) bool
}

// StaticAdminSet is a CapabilityChecker backed by a fixed id set.
type StaticAdminSet map[string]bool

func (s StaticAdminSet) IsAdmin(accountID string) bool { return s[accountID] }

// EconomyService orchestrates all coin balance mutation. It is the only
// writer of wallet balances and key use counts.
type EconomyService struct {
	wallets    repository.WalletRepository
	keys       repository.KeyRepository
	caps       CapabilityChecker
	sink       notify.Sink
	dailyBonus int64
	logger     *slog.Logger
}

// NewEconomyService creates a new economy service.
func NewEconomyService(wallets repository.WalletRepository, keys repository.KeyRepository, caps CapabilityChecker, sink notify.Sink, dailyBonus int64, logger *slog.Logger) *EconomyService {
	return &EconomyService{
		wallets:    wallets,
		keys:       keys,
		caps:       caps,
		sink:       sink,
		dailyBonus: dailyBonus,
		logger:     logger,
	}
}

// Grant credits an account. Amount must be positive.
func (s *EconomyService) Grant(ctx context.Context, accountID string, amount int64, txType model.TransactionType, related, description string) (*model.Wallet, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, errs.ErrInvalidAmount
	}

	wallet, tx, err := s.wallets.ApplyDelta(ctx, accountID, amount, model.TransactionMeta{
		Type:          txType,
		RelatedEntity: related,
		Description:   description,
	})
	if err != nil {
		return nil, nil, err
	}

	s.sink.Notify(accountID, "Coins received", fmt.Sprintf("You received %d coins: %s", amount, description))
	return wallet, tx, nil
}

// Spend debits an account. Amount must be positive; fails with
// ErrInsufficientBalance when the balance does not cover it.
func (s *EconomyService) Spend(ctx context.Context, accountID string, amount int64, txType model.TransactionType, related, description string) (*model.Wallet, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, errs.ErrInvalidAmount
	}

	return s.wallets.ApplyDelta(ctx, accountID, -amount, model.TransactionMeta{
		Type:          txType,
		RelatedEntity: related,
		Description:   description,
	})
}

// AdminAdjust applies a signed correction to an account's balance. Negative
// adjustments may drive the balance to zero but never below; the wallet
// store's overdraft guard enforces that.
func (s *EconomyService) AdminAdjust(ctx context.Context, adminID, accountID string, amount int64, note string) (*model.Wallet, *model.Transaction, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, nil, errs.ErrUnauthorized
	}
	if amount == 0 {
		return nil, nil, errs.ErrInvalidAmount
	}

	txType := model.TxAdminGrant
	if amount < 0 {
		txType = model.TxAdminRemove
	}

	return s.wallets.ApplyDelta(ctx, accountID, amount, model.TransactionMeta{
		Type:            txType,
		Description:     fmt.Sprintf("Admin adjustment by %s", adminID),
		VerifiedByAdmin: true,
		AdminNote:       note,
	})
}

// ClaimDailyBonus grants the configured daily amount once per 24h window.
// The claim is serialized through the wallet store's atomic update, so a
// double-click cannot grant twice.
func (s *EconomyService) ClaimDailyBonus(ctx context.Context, accountID string) (*model.Wallet, *model.Transaction, error) {
	wallet, tx, err := s.wallets.ClaimDailyBonus(ctx, accountID, s.dailyBonus, time.Now().UTC(), dailyBonusWindow)
	if err != nil {
		return nil, nil, err
	}

	s.sink.Notify(accountID, "Daily bonus", fmt.Sprintf("You claimed your daily bonus of %d coins", s.dailyBonus))
	return wallet, tx, nil
}

// NormalizeCode canonicalizes a redemption or referral code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RedeemKey exchanges a prepaid code for its coin amount. The use-count
// increment is a conditional write; a caller that loses the race for the
// last remaining use gets ErrConflict and may retry from scratch.
func (s *EconomyService) RedeemKey(ctx context.Context, code, accountID string) (*model.Wallet, *model.Transaction, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil, errs.ErrInvalidCode
	}

	now := time.Now().UTC()

	key, err := s.keys.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if key.Expired(now) || key.Exhausted() || (key.MaxUses == 1 && key.UsedBy == accountID) {
		return nil, nil, errs.ErrKeyExpiredOrExhausted
	}

	key, err = s.keys.RedeemOnce(ctx, code, accountID, now)
	if err != nil {
		return nil, nil, err
	}

	wallet, tx, err := s.Grant(ctx, accountID, key.CoinAmount, model.TxKeyRedemption, "code:"+code, fmt.Sprintf("Redeemed key %s", code))
	if err != nil {
		// The use count was already incremented and is not rolled back;
		// flag for reconciliation.
		s.logger.Error("key redeemed but grant failed, needs reconciliation",
			"code", code, "account_id", accountID, "coin_amount", key.CoinAmount, "error", err)
		return nil, nil, err
	}

	return wallet, tx, nil
}

// Balance returns the wallet for an account, creating it on first access.
func (s *EconomyService) Balance(ctx context.Context, accountID string) (*model.Wallet, error) {
	return s.wallets.Get(ctx, accountID)
}

// Transactions returns the account's transaction log, newest first.
func (s *EconomyService) Transactions(ctx context.Context, accountID string, limit int64) ([]*model.Transaction, error) {
	return s.wallets.ListTransactions(ctx, accountID, limit)
}

// CreateKey registers a redemption key; admin only. A code is generated when
// the request does not name one.
func (s *EconomyService) CreateKey(ctx context.Context, adminID string, req *model.CreateKeyRequest) (*model.RedemptionKey, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, errs.ErrUnauthorized
	}

	code := NormalizeCode(req.Code)
	if code == "" {
		code = generateKeyCode()
	}

	key := &model.RedemptionKey{
		ID:         uuid.NewString(),
		Code:       code,
		CoinAmount: req.CoinAmount,
		MaxUses:    req.MaxUses,
		ExpiresAt:  req.ExpiresAt,
		CreatedBy:  adminID,
		Note:       req.Note,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	return key, nil
}

// DeleteKey removes a redemption key; admin only.
func (s *EconomyService) DeleteKey(ctx context.Context, adminID, keyID string) error {
	if !s.caps.IsAdmin(adminID) {
		return errs.ErrUnauthorized
	}

	return s.keys.Delete(ctx, keyID)
}

// ListKeys returns all redemption keys; admin only.
func (s *EconomyService) ListKeys(ctx context.Context, adminID string) ([]*model.RedemptionKey, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, errs.ErrUnauthorized
	}

	return s.keys.List(ctx)
}

// generateKeyCode builds a DANCE-XXXX code from a uuid fragment.
func generateKeyCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "DANCE-" + raw[:8]
}
