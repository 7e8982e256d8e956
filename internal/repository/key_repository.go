package repository

import (
	"context"
	"time"

	"github.com/tatidance/economy/internal/model"
)

// KeyRepository is the redemption-key registry.
type KeyRepository interface {
	// Create stores a new key. Fails with ErrKeyAlreadyExists on a code clash.
	Create(ctx context.Context, key *model.RedemptionKey) error

	// GetByCode retrieves a key by its normalized code.
	// Fails with ErrInvalidCode when absent.
	GetByCode(ctx context.Context, code string) (*model.RedemptionKey, error)

	// RedeemOnce conditionally increments the key's use count: the write only
	// lands if the key is still unexpired and not exhausted, and (for
	// single-use keys) not already used. Returns the post-increment key, or
	// ErrConflict when another redemption won the race.
	RedeemOnce(ctx context.Context, code, accountID string, now time.Time) (*model.RedemptionKey, error)

	// Delete removes a key by id. Fails with ErrKeyNotFound.
	Delete(ctx context.Context, id string) error

	// List returns all keys, newest first.
	List(ctx context.Context) ([]*model.RedemptionKey, error)
}
