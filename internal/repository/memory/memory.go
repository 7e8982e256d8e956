// Package memory provides in-memory repository implementations with the
// same atomicity semantics as the MongoDB ones: every conditional write
// checks and mutates under a single lock. Used by tests and local runs
// without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/repository"
	errs "github.com/tatidance/economy/pkg/errors"
)

// WalletRepository is the in-memory wallet store.
type WalletRepository struct {
	mu      sync.Mutex
	wallets map[string]*model.Wallet
	txs     map[string][]*model.Transaction

	grantErr map[string]error
}

var _ repository.WalletRepository = (*WalletRepository)(nil)

// NewWalletRepository creates an empty in-memory wallet store.
func NewWalletRepository() *WalletRepository {
	return &WalletRepository{
		wallets:  make(map[string]*model.Wallet),
		txs:      make(map[string][]*model.Transaction),
		grantErr: make(map[string]error),
	}
}

// FailGrantsFor makes positive deltas for an account fail with err,
// simulating store trouble for one party of a multi-account payout.
func (r *WalletRepository) FailGrantsFor(accountID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantErr[accountID] = err
}

func (r *WalletRepository) ensure(accountID string) *model.Wallet {
	w, ok := r.wallets[accountID]
	if !ok {
		now := time.Now().UTC()
		w = &model.Wallet{ID: accountID, CreatedAt: now, UpdatedAt: now}
		r.wallets[accountID] = w
	}
	return w
}

func (r *WalletRepository) Get(ctx context.Context, accountID string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := *r.ensure(accountID)
	return &w, nil
}

func (r *WalletRepository) ApplyDelta(ctx context.Context, accountID string, delta int64, meta model.TransactionMeta) (*model.Wallet, *model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.grantErr[accountID]; ok && delta > 0 {
		return nil, nil, err
	}

	w := r.ensure(accountID)
	if delta < 0 && w.Balance < -delta {
		return nil, nil, errs.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	w.Balance += delta
	if delta > 0 {
		w.TotalEarned += delta
	} else {
		w.TotalSpent += -delta
	}
	w.UpdatedAt = now

	tx := &model.Transaction{
		ID:              uuid.NewString(),
		WalletID:        accountID,
		Type:            meta.Type,
		Amount:          delta,
		BalanceAfter:    w.Balance,
		RelatedEntity:   meta.RelatedEntity,
		Description:     meta.Description,
		VerifiedByAdmin: meta.VerifiedByAdmin,
		AdminNote:       meta.AdminNote,
		CreatedAt:       now,
	}
	r.txs[accountID] = append(r.txs[accountID], tx)

	cp := *w
	return &cp, tx, nil
}

func (r *WalletRepository) ClaimDailyBonus(ctx context.Context, accountID string, amount int64, now time.Time, window time.Duration) (*model.Wallet, *model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.ensure(accountID)
	if w.LastDailyBonusAt != nil && now.Sub(*w.LastDailyBonusAt) < window {
		return nil, nil, errs.ErrDailyBonusAlreadyClaimed
	}

	w.Balance += amount
	w.TotalEarned += amount
	stamp := now
	w.LastDailyBonusAt = &stamp
	w.UpdatedAt = now

	tx := &model.Transaction{
		ID:           uuid.NewString(),
		WalletID:     accountID,
		Type:         model.TxDailyBonus,
		Amount:       amount,
		BalanceAfter: w.Balance,
		Description:  "Daily login bonus",
		CreatedAt:    now,
	}
	r.txs[accountID] = append(r.txs[accountID], tx)

	cp := *w
	return &cp, tx, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, accountID string, limit int64) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.txs[accountID]
	out := make([]*model.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// SumAmounts recomputes a wallet's balance from its full transaction log,
// for checking the ledger invariant.
func (r *WalletRepository) SumAmounts(accountID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum int64
	for _, tx := range r.txs[accountID] {
		sum += tx.Amount
	}
	return sum
}

// Balance reads the current balance without provisioning a wallet.
func (r *WalletRepository) Balance(accountID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[accountID]; ok {
		return w.Balance
	}
	return 0
}

// KeyRepository is the in-memory redemption-key registry.
type KeyRepository struct {
	mu   sync.Mutex
	keys map[string]*model.RedemptionKey // by code
}

var _ repository.KeyRepository = (*KeyRepository)(nil)

// NewKeyRepository creates an empty in-memory key registry.
func NewKeyRepository() *KeyRepository {
	return &KeyRepository{keys: make(map[string]*model.RedemptionKey)}
}

func (r *KeyRepository) Create(ctx context.Context, key *model.RedemptionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.Code]; ok {
		return errs.ErrKeyAlreadyExists
	}
	cp := *key
	r.keys[key.Code] = &cp
	return nil
}

func (r *KeyRepository) GetByCode(ctx context.Context, code string) (*model.RedemptionKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[code]
	if !ok {
		return nil, errs.ErrInvalidCode
	}
	cp := *key
	return &cp, nil
}

func (r *KeyRepository) RedeemOnce(ctx context.Context, code, accountID string, now time.Time) (*model.RedemptionKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[code]
	if !ok || key.Expired(now) || key.Exhausted() || (key.UsedBy != "" && key.UsedBy == accountID) {
		return nil, errs.ErrConflict
	}

	key.CurrentUses++
	if key.MaxUses == 1 {
		key.IsUsed = true
		key.UsedBy = accountID
	}
	cp := *key
	return &cp, nil
}

func (r *KeyRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, key := range r.keys {
		if key.ID == id {
			delete(r.keys, code)
			return nil
		}
	}
	return errs.ErrKeyNotFound
}

func (r *KeyRepository) List(ctx context.Context) ([]*model.RedemptionKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.RedemptionKey, 0, len(r.keys))
	for _, key := range r.keys {
		cp := *key
		out = append(out, &cp)
	}
	return out, nil
}

// CommissionRepository is the in-memory commission registry.
type CommissionRepository struct {
	mu     sync.Mutex
	rows   map[string]*model.Commission // by courseID + "/" + trainerID
	legacy map[string]*model.LegacyCommission
}

var _ repository.CommissionRepository = (*CommissionRepository)(nil)

// NewCommissionRepository creates an empty in-memory commission registry.
func NewCommissionRepository() *CommissionRepository {
	return &CommissionRepository{
		rows:   make(map[string]*model.Commission),
		legacy: make(map[string]*model.LegacyCommission),
	}
}

// SeedLegacy installs a pre-migration single-trainer commission.
func (r *CommissionRepository) SeedLegacy(legacy *model.LegacyCommission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *legacy
	r.legacy[legacy.CourseID] = &cp
}

func (r *CommissionRepository) Upsert(ctx context.Context, c *model.Commission) (*model.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := c.CourseID + "/" + c.TrainerID
	now := time.Now().UTC()
	if existing, ok := r.rows[key]; ok {
		existing.CommissionPercent = c.CommissionPercent
		existing.IsActive = c.IsActive
		existing.LastUpdatedBy = c.LastUpdatedBy
		existing.Notes = c.Notes
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	cp := *c
	cp.ID = uuid.NewString()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.rows[key] = &cp
	out := cp
	return &out, nil
}

func (r *CommissionRepository) SetActive(ctx context.Context, courseID, trainerID string, active bool, adminID string) (*model.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[courseID+"/"+trainerID]
	if !ok {
		return nil, errs.ErrCommissionNotFound
	}
	row.IsActive = active
	row.LastUpdatedBy = adminID
	row.UpdatedAt = time.Now().UTC()
	cp := *row
	return &cp, nil
}

func (r *CommissionRepository) ListForCourse(ctx context.Context, courseID string) ([]*model.Commission, error) {
	return r.list(courseID, false), nil
}

func (r *CommissionRepository) ListActiveForCourse(ctx context.Context, courseID string) ([]*model.Commission, error) {
	return r.list(courseID, true), nil
}

func (r *CommissionRepository) list(courseID string, activeOnly bool) []*model.Commission {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Commission
	for _, row := range r.rows {
		if row.CourseID != courseID {
			continue
		}
		if activeOnly && !row.IsActive {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out
}

func (r *CommissionRepository) GetLegacy(ctx context.Context, courseID string) (*model.LegacyCommission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	legacy, ok := r.legacy[courseID]
	if !ok {
		return nil, nil
	}
	cp := *legacy
	return &cp, nil
}

// ReferralRepository is the in-memory referral store.
type ReferralRepository struct {
	mu        sync.Mutex
	codes     map[string]*model.ReferralCode // by code string
	referrals map[string]*model.Referral     // by referred user id

	claimErr error
}

var _ repository.ReferralRepository = (*ReferralRepository)(nil)

// NewReferralRepository creates an empty in-memory referral store.
func NewReferralRepository() *ReferralRepository {
	return &ReferralRepository{
		codes:     make(map[string]*model.ReferralCode),
		referrals: make(map[string]*model.Referral),
	}
}

// FailBonusClaims makes first-purchase claims fail with err, simulating
// store trouble during the post-sale referral check.
func (r *ReferralRepository) FailBonusClaims(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimErr = err
}

// AgeReferral backdates a referral's creation time, for expiry testing.
func (r *ReferralRepository) AgeReferral(referredUserID string, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.referrals[referredUserID]; ok {
		ref.CreatedAt = createdAt
	}
}

func (r *ReferralRepository) CreateCode(ctx context.Context, rc *model.ReferralCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codes[rc.Code]; ok {
		return errs.ErrConflict
	}
	for _, existing := range r.codes {
		if existing.UserID == rc.UserID {
			return errs.ErrConflict
		}
	}
	cp := *rc
	r.codes[rc.Code] = &cp
	return nil
}

func (r *ReferralRepository) GetCodeByUser(ctx context.Context, userID string) (*model.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rc := range r.codes {
		if rc.UserID == userID {
			cp := *rc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *ReferralRepository) GetCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.codes[code]
	if !ok {
		return nil, errs.ErrInvalidCode
	}
	cp := *rc
	return &cp, nil
}

func (r *ReferralRepository) CreateReferral(ctx context.Context, ref *model.Referral) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.referrals[ref.ReferredUserID]; ok {
		return errs.ErrCodeAlreadyApplied
	}
	cp := *ref
	r.referrals[ref.ReferredUserID] = &cp
	return nil
}

func (r *ReferralRepository) CountByReferrerSince(ctx context.Context, referrerID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, ref := range r.referrals {
		if ref.ReferrerID == referrerID && !ref.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *ReferralRepository) ClaimPendingForVerification(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.referrals[referredUserID]
	if !ok || ref.Status != model.ReferralPending {
		return nil, nil
	}

	ref.Status = model.ReferralVerified
	ref.CoinsEarnedReferrer = rewardReferrer
	ref.CoinsEarnedReferred = rewardReferred
	cp := *ref
	return &cp, nil
}

func (r *ReferralRepository) ClaimFirstPurchaseBonus(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claimErr != nil {
		return nil, r.claimErr
	}

	ref, ok := r.referrals[referredUserID]
	if !ok || ref.Status != model.ReferralVerified || ref.FirstPurchaseBonusPaid {
		return nil, nil
	}

	ref.Status = model.ReferralCompleted
	ref.FirstPurchaseBonusPaid = true
	stamp := now
	ref.FirstPurchaseDate = &stamp
	ref.CompletedAt = &stamp
	ref.CoinsEarnedReferrer += rewardReferrer
	ref.CoinsEarnedReferred += rewardReferred
	cp := *ref
	return &cp, nil
}

func (r *ReferralRepository) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, ref := range r.referrals {
		if ref.Status == model.ReferralPending && ref.CreatedAt.Before(before) {
			ref.Status = model.ReferralExpired
			count++
		}
	}
	return count, nil
}

func (r *ReferralRepository) StatsForReferrer(ctx context.Context, referrerID string) (*model.ReferralStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &model.ReferralStats{}
	for _, ref := range r.referrals {
		if ref.ReferrerID != referrerID {
			continue
		}
		stats.TotalReferrals++
		if ref.Status == model.ReferralPending {
			stats.PendingReferrals++
		}
	}
	return stats, nil
}
