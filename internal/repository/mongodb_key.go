package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/pkg/database"
	errs "github.com/tatidance/economy/pkg/errors"
)

// mongodbKeyRepository implements KeyRepository using MongoDB
type mongodbKeyRepository struct {
	collection *mongo.Collection
}

// NewKeyRepository creates a new MongoDB-based redemption key repository.
func NewKeyRepository(db *mongo.Database) KeyRepository {
	return &mongodbKeyRepository{
		collection: db.Collection(database.CollKeys),
	}
}

// Create stores a new key
func (r *mongodbKeyRepository) Create(ctx context.Context, key *model.RedemptionKey) error {
	_, err := r.collection.InsertOne(ctx, key)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrKeyAlreadyExists
		}
		return err
	}

	return nil
}

// GetByCode retrieves a key by its normalized code
func (r *mongodbKeyRepository) GetByCode(ctx context.Context, code string) (*model.RedemptionKey, error) {
	var key model.RedemptionKey
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&key)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrInvalidCode
		}
		return nil, err
	}

	return &key, nil
}

// RedeemOnce conditionally increments the key's use count. The whole
// pre-check lives in the update filter, so two racing redemptions of the
// last remaining use cannot both land. The pipeline update stamps the
// single-use convenience fields in the same write, so a use can never be
// consumed with is_used/used_by left behind.
func (r *mongodbKeyRepository) RedeemOnce(ctx context.Context, code, accountID string, now time.Time) (*model.RedemptionKey, error) {
	filter := bson.M{
		"code": code,
		// not expired: missing/nil expiry passes, past expiry does not
		"expires_at": bson.M{"$not": bson.M{"$lt": now}},
		"$or": []bson.M{
			{"max_uses": 0},
			{"$expr": bson.M{"$lt": []string{"$current_uses", "$max_uses"}}},
		},
		"used_by": bson.M{"$ne": accountID},
	}

	singleUse := bson.M{"$eq": bson.A{"$max_uses", 1}}
	update := bson.A{
		bson.M{"$set": bson.M{
			"current_uses": bson.M{"$add": bson.A{"$current_uses", 1}},
			"is_used":      bson.M{"$cond": bson.A{singleUse, true, "$is_used"}},
			"used_by":      bson.M{"$cond": bson.A{singleUse, accountID, "$used_by"}},
		}},
	}

	var key model.RedemptionKey
	err := r.collection.FindOneAndUpdate(
		ctx,
		filter,
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&key)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrConflict
		}
		return nil, err
	}

	return &key, nil
}

// Delete removes a key by id
func (r *mongodbKeyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return errs.ErrKeyNotFound
	}

	return nil
}

// List returns all keys, newest first
func (r *mongodbKeyRepository) List(ctx context.Context) ([]*model.RedemptionKey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var keys []*model.RedemptionKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}

	return keys, nil
}
