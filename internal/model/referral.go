package model

import "time"

// ReferralStatus is the lifecycle state of a referral record.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralVerified  ReferralStatus = "verified"
	ReferralExpired   ReferralStatus = "expired"
	ReferralCompleted ReferralStatus = "completed"
)

// ReferralCode is a user's invite code. Each user has at most one.
type ReferralCode struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	UserName  string    `bson:"user_name" json:"user_name"`
	Code      string    `bson:"code" json:"code"` // unique, stored uppercase
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Referral tracks one invited account from signup through first purchase.
//
//	pending --(email verified)--> verified --(first purchase)--> completed
//	pending --(stale sweep)-----> expired
//
// The pending->verified transition is the exactly-once gate for the signup
// bonus; FirstPurchaseBonusPaid gates the first-purchase bonus.
type Referral struct {
	ID                     string         `bson:"_id" json:"id"`
	ReferrerID             string         `bson:"referrer_id" json:"referrer_id"`
	ReferredUserID         string         `bson:"referred_user_id" json:"referred_user_id"` // unique: one code use per account
	ReferredUserName       string         `bson:"referred_user_name,omitempty" json:"referred_user_name,omitempty"`
	ReferredUserEmail      string         `bson:"referred_user_email,omitempty" json:"referred_user_email,omitempty"`
	Code                   string         `bson:"code" json:"code"`
	Status                 ReferralStatus `bson:"status" json:"status"`
	CoinsEarnedReferrer    int64          `bson:"coins_earned_referrer" json:"coins_earned_referrer"`
	CoinsEarnedReferred    int64          `bson:"coins_earned_referred" json:"coins_earned_referred"`
	FirstPurchaseBonusPaid bool           `bson:"first_purchase_bonus_paid" json:"first_purchase_bonus_paid"`
	CreatedAt              time.Time      `bson:"created_at" json:"created_at"`
	CompletedAt            *time.Time     `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	FirstPurchaseDate      *time.Time     `bson:"first_purchase_date,omitempty" json:"first_purchase_date,omitempty"`
}

// ReferralStats summarizes a referrer's activity.
type ReferralStats struct {
	TotalReferrals   int64 `json:"total_referrals"`
	PendingReferrals int64 `json:"pending_referrals"`
}

// CodeRequest fetches or creates the caller's referral code.
type CodeRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name" binding:"required"`
}

// CodeResponse returns the code together with the owner's stats.
type CodeResponse struct {
	Code  string        `json:"code"`
	Stats ReferralStats `json:"stats"`
}

// ApplyCodeRequest records that a new account signed up with a code.
type ApplyCodeRequest struct {
	Code      string `json:"code" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email" binding:"omitempty,email"`
}

// UserRequest identifies the referred account for verification and
// first-purchase checks.
type UserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}
