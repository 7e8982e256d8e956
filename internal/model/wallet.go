package model

import "time"

// TransactionType classifies a wallet mutation.
type TransactionType string

const (
	TxPurchaseSpend      TransactionType = "purchase_spend"
	TxCourseSaleEarning  TransactionType = "course_sale_earning"
	TxAdminGrant         TransactionType = "admin_grant"
	TxAdminRemove        TransactionType = "admin_remove"
	TxKeyRedemption      TransactionType = "key_redemption"
	TxDailyBonus         TransactionType = "daily_bonus"
	TxReferralBonus      TransactionType = "referral_bonus"
	TxTrainingPlanCharge TransactionType = "training_plan_charge"
	TxVideoReviewCharge  TransactionType = "video_review_charge"
)

// Wallet is the per-account coin balance. The account may be an end user or
// a trainer; wallets are created lazily on first access and never deleted.
type Wallet struct {
	ID               string     `bson:"_id" json:"id"` // account id
	Balance          int64      `bson:"balance" json:"balance"`
	TotalEarned      int64      `bson:"total_earned" json:"total_earned"`
	TotalSpent       int64      `bson:"total_spent" json:"total_spent"`
	LastDailyBonusAt *time.Time `bson:"last_daily_bonus_at,omitempty" json:"last_daily_bonus_at,omitempty"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
}

// Transaction is one immutable entry in a wallet's append-only log.
// BalanceAfter snapshots the wallet balance at write time for audit.
type Transaction struct {
	ID              string          `bson:"_id" json:"id"`
	WalletID        string          `bson:"wallet_id" json:"wallet_id"`
	Type            TransactionType `bson:"type" json:"type"`
	Amount          int64           `bson:"amount" json:"amount"` // signed
	BalanceAfter    int64           `bson:"balance_after" json:"balance_after"`
	RelatedEntity   string          `bson:"related_entity,omitempty" json:"related_entity,omitempty"`
	Description     string          `bson:"description" json:"description"`
	VerifiedByAdmin bool            `bson:"verified_by_admin" json:"verified_by_admin"`
	AdminNote       string          `bson:"admin_note,omitempty" json:"admin_note,omitempty"`
	CreatedAt       time.Time       `bson:"created_at" json:"created_at"`
}

// TransactionMeta carries the audit fields of a pending wallet mutation into
// the store, which assigns id, amount, balance snapshot and timestamp.
type TransactionMeta struct {
	Type            TransactionType
	RelatedEntity   string
	Description     string
	VerifiedByAdmin bool
	AdminNote       string
}

// GrantRequest credits an account.
type GrantRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// SpendRequest debits an account.
type SpendRequest struct {
	AccountID   string `json:"account_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// AdjustRequest is an admin balance correction; Amount is signed.
type AdjustRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Note      string `json:"note"`
}

// DailyBonusRequest claims the once-per-24h bonus.
type DailyBonusRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// RedeemRequest exchanges a prepaid code for coins.
type RedeemRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// BalanceResponse is the read surface of a wallet.
type BalanceResponse struct {
	AccountID        string     `json:"account_id"`
	Balance          int64      `json:"balance"`
	TotalEarned      int64      `json:"total_earned"`
	TotalSpent       int64      `json:"total_spent"`
	LastDailyBonusAt *time.Time `json:"last_daily_bonus_at,omitempty"`
}
