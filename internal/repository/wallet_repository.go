package repository

import (
	"context"
	"time"

	"github.com/tatidance/economy/internal/model"
)

// WalletRepository is the wallet store: per-account balance plus the
// append-only transaction log. It is the single serialization point for
// balance mutation; no other component writes a balance.
type WalletRepository interface {
	// Get returns the wallet for an account, creating it on first access.
	Get(ctx context.Context, accountID string) (*model.Wallet, error)

	// ApplyDelta atomically applies a signed amount to the wallet balance and
	// appends the matching transaction. Fails with ErrInsufficientBalance
	// when the result would be negative, leaving the wallet unchanged.
	ApplyDelta(ctx context.Context, accountID string, delta int64, meta model.TransactionMeta) (*model.Wallet, *model.Transaction, error)

	// ClaimDailyBonus grants amount if the wallet's last claim is older than
	// window (or absent), stamping the claim time in the same atomic update.
	// Fails with ErrDailyBonusAlreadyClaimed otherwise.
	ClaimDailyBonus(ctx context.Context, accountID string, amount int64, now time.Time, window time.Duration) (*model.Wallet, *model.Transaction, error)

	// ListTransactions returns the account's transactions, newest first.
	ListTransactions(ctx context.Context, accountID string, limit int64) ([]*model.Transaction, error)
}
