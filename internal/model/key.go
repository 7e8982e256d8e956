package model

import "time"

// RedemptionKey is a prepaid code exchangeable for a fixed coin amount.
// MaxUses of 0 means unlimited; 1 makes the key single-use, in which case
// IsUsed/UsedBy are set on redemption for convenience.
type RedemptionKey struct {
	ID          string     `bson:"_id" json:"id"`
	Code        string     `bson:"code" json:"code"` // unique, stored uppercase
	CoinAmount  int64      `bson:"coin_amount" json:"coin_amount"`
	MaxUses     int32      `bson:"max_uses" json:"max_uses"`
	CurrentUses int32      `bson:"current_uses" json:"current_uses"`
	IsUsed      bool       `bson:"is_used" json:"is_used"`
	UsedBy      string     `bson:"used_by,omitempty" json:"used_by,omitempty"`
	ExpiresAt   *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	CreatedBy   string     `bson:"created_by" json:"created_by"`
	Note        string     `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
}

// Exhausted reports whether the key has no redemptions left.
func (k *RedemptionKey) Exhausted() bool {
	return k.MaxUses > 0 && k.CurrentUses >= k.MaxUses
}

// Expired reports whether the key's expiry has passed.
func (k *RedemptionKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// CreateKeyRequest creates a redemption key. Code is optional; one is
// generated when absent.
type CreateKeyRequest struct {
	Code       string     `json:"code"`
	CoinAmount int64      `json:"coin_amount" binding:"required,gt=0"`
	MaxUses    int32      `json:"max_uses" binding:"gte=0"`
	ExpiresAt  *time.Time `json:"expires_at"`
	Note       string     `json:"note"`
}
