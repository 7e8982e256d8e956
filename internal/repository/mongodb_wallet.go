package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/pkg/database"
	errs "github.com/tatidance/economy/pkg/errors"
)

// mongodbWalletRepository implements WalletRepository using MongoDB.
// Balance mutation is a FindOneAndUpdate whose filter guards against
// overdraft; losing the guard means the document no longer matched, which
// surfaces as ErrNoDocuments and never as a partial write.
type mongodbWalletRepository struct {
	wallets      *mongo.Collection
	transactions *mongo.Collection
	uow          *database.UnitOfWork
}

// NewWalletRepository creates a new MongoDB-based wallet repository.
func NewWalletRepository(db *mongo.Database, uow *database.UnitOfWork) WalletRepository {
	return &mongodbWalletRepository{
		wallets:      db.Collection(database.CollWallets),
		transactions: db.Collection(database.CollTransactions),
		uow:          uow,
	}
}

// Get returns the wallet for an account, creating it on first access.
func (r *mongodbWalletRepository) Get(ctx context.Context, accountID string) (*model.Wallet, error) {
	now := time.Now().UTC()

	var wallet model.Wallet
	err := r.wallets.FindOneAndUpdate(
		ctx,
		bson.M{"_id": accountID},
		bson.M{"$setOnInsert": bson.M{
			"balance":      int64(0),
			"total_earned": int64(0),
			"total_spent":  int64(0),
			"created_at":   now,
			"updated_at":   now,
		}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&wallet)
	if err != nil {
		return nil, err
	}

	return &wallet, nil
}

// ApplyDelta atomically applies a signed amount and appends the transaction.
func (r *mongodbWalletRepository) ApplyDelta(ctx context.Context, accountID string, delta int64, meta model.TransactionMeta) (*model.Wallet, *model.Transaction, error) {
	// Lazy provisioning happens outside the money transaction; the upsert is
	// idempotent.
	if _, err := r.Get(ctx, accountID); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()

	filter := bson.M{"_id": accountID}
	if delta < 0 {
		filter["balance"] = bson.M{"$gte": -delta} // overdraft guard
	}

	inc := bson.M{"balance": delta}
	if delta > 0 {
		inc["total_earned"] = delta
	} else {
		inc["total_spent"] = -delta
	}

	var wallet model.Wallet
	var tx *model.Transaction
	err := r.uow.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		err := r.wallets.FindOneAndUpdate(
			sc,
			filter,
			bson.M{"$inc": inc, "$set": bson.M{"updated_at": now}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&wallet)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return errs.ErrInsufficientBalance
			}
			return err
		}

		tx = &model.Transaction{
			ID:              uuid.NewString(),
			WalletID:        accountID,
			Type:            meta.Type,
			Amount:          delta,
			BalanceAfter:    wallet.Balance,
			RelatedEntity:   meta.RelatedEntity,
			Description:     meta.Description,
			VerifiedByAdmin: meta.VerifiedByAdmin,
			AdminNote:       meta.AdminNote,
			CreatedAt:       now,
		}
		_, err = r.transactions.InsertOne(sc, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return &wallet, tx, nil
}

// ClaimDailyBonus grants the bonus only if the last claim is outside the
// window. The time check lives in the update filter, so a second concurrent
// claim loses the match instead of double-granting.
func (r *mongodbWalletRepository) ClaimDailyBonus(ctx context.Context, accountID string, amount int64, now time.Time, window time.Duration) (*model.Wallet, *model.Transaction, error) {
	if _, err := r.Get(ctx, accountID); err != nil {
		return nil, nil, err
	}

	cutoff := now.Add(-window)
	filter := bson.M{
		"_id": accountID,
		"$or": []bson.M{
			{"last_daily_bonus_at": bson.M{"$exists": false}},
			{"last_daily_bonus_at": nil},
			{"last_daily_bonus_at": bson.M{"$lte": cutoff}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"balance": amount, "total_earned": amount},
		"$set": bson.M{"last_daily_bonus_at": now, "updated_at": now},
	}

	var wallet model.Wallet
	var tx *model.Transaction
	err := r.uow.WithTransaction(ctx, func(sc mongo.SessionContext) error {
		err := r.wallets.FindOneAndUpdate(
			sc,
			filter,
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&wallet)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return errs.ErrDailyBonusAlreadyClaimed
			}
			return err
		}

		tx = &model.Transaction{
			ID:           uuid.NewString(),
			WalletID:     accountID,
			Type:         model.TxDailyBonus,
			Amount:       amount,
			BalanceAfter: wallet.Balance,
			Description:  "Daily login bonus",
			CreatedAt:    now,
		}
		_, err = r.transactions.InsertOne(sc, tx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return &wallet, tx, nil
}

// ListTransactions returns the account's transactions, newest first.
func (r *mongodbWalletRepository) ListTransactions(ctx context.Context, accountID string, limit int64) ([]*model.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.transactions.Find(ctx, bson.M{"wallet_id": accountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var txs []*model.Transaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}

	return txs, nil
}
