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

// mongodbReferralRepository implements ReferralRepository using MongoDB.
// Status transitions are conditional updates filtered on the expected
// current status; a repeated or racing call finds no matching document and
// reports a no-op instead of paying twice.
type mongodbReferralRepository struct {
	referrals *mongo.Collection
	codes     *mongo.Collection
}

// NewReferralRepository creates a new MongoDB-based referral repository.
func NewReferralRepository(db *mongo.Database) ReferralRepository {
	return &mongodbReferralRepository{
		referrals: db.Collection(database.CollReferrals),
		codes:     db.Collection(database.CollReferralCodes),
	}
}

// CreateCode stores a user's referral code
func (r *mongodbReferralRepository) CreateCode(ctx context.Context, rc *model.ReferralCode) error {
	_, err := r.codes.InsertOne(ctx, rc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrConflict
		}
		return err
	}

	return nil
}

// GetCodeByUser retrieves a user's code, or (nil, nil) when none exists
func (r *mongodbReferralRepository) GetCodeByUser(ctx context.Context, userID string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := r.codes.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &rc, nil
}

// GetCodeByCode looks up a code string
func (r *mongodbReferralRepository) GetCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := r.codes.FindOne(ctx, bson.M{"code": code}).Decode(&rc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrInvalidCode
		}
		return nil, err
	}

	return &rc, nil
}

// CreateReferral inserts a pending record
func (r *mongodbReferralRepository) CreateReferral(ctx context.Context, ref *model.Referral) error {
	_, err := r.referrals.InsertOne(ctx, ref)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrCodeAlreadyApplied
		}
		return err
	}

	return nil
}

// CountByReferrerSince counts a referrer's records created at or after since
func (r *mongodbReferralRepository) CountByReferrerSince(ctx context.Context, referrerID string, since time.Time) (int64, error) {
	return r.referrals.CountDocuments(ctx, bson.M{
		"referrer_id": referrerID,
		"created_at":  bson.M{"$gte": since},
	})
}

// ClaimPendingForVerification transitions pending -> verified exactly once
func (r *mongodbReferralRepository) ClaimPendingForVerification(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error) {
	var ref model.Referral
	err := r.referrals.FindOneAndUpdate(
		ctx,
		bson.M{"referred_user_id": referredUserID, "status": model.ReferralPending},
		bson.M{"$set": bson.M{
			"status":                model.ReferralVerified,
			"coins_earned_referrer": rewardReferrer,
			"coins_earned_referred": rewardReferred,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ref)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &ref, nil
}

// ClaimFirstPurchaseBonus transitions verified -> completed exactly once
func (r *mongodbReferralRepository) ClaimFirstPurchaseBonus(ctx context.Context, referredUserID string, rewardReferrer, rewardReferred int64, now time.Time) (*model.Referral, error) {
	var ref model.Referral
	err := r.referrals.FindOneAndUpdate(
		ctx,
		bson.M{
			"referred_user_id":          referredUserID,
			"status":                    model.ReferralVerified,
			"first_purchase_bonus_paid": false,
		},
		bson.M{
			"$set": bson.M{
				"status":                    model.ReferralCompleted,
				"first_purchase_bonus_paid": true,
				"first_purchase_date":       now,
				"completed_at":              now,
			},
			"$inc": bson.M{
				"coins_earned_referrer": rewardReferrer,
				"coins_earned_referred": rewardReferred,
			},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ref)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &ref, nil
}

// ExpireStale marks pending records created before the cutoff as expired
func (r *mongodbReferralRepository) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.referrals.UpdateMany(
		ctx,
		bson.M{"status": model.ReferralPending, "created_at": bson.M{"$lt": before}},
		bson.M{"$set": bson.M{"status": model.ReferralExpired}},
	)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

// StatsForReferrer summarizes a referrer's records
func (r *mongodbReferralRepository) StatsForReferrer(ctx context.Context, referrerID string) (*model.ReferralStats, error) {
	total, err := r.referrals.CountDocuments(ctx, bson.M{"referrer_id": referrerID})
	if err != nil {
		return nil, err
	}

	pending, err := r.referrals.CountDocuments(ctx, bson.M{
		"referrer_id": referrerID,
		"status":      model.ReferralPending,
	})
	if err != nil {
		return nil, err
	}

	return &model.ReferralStats{TotalReferrals: total, PendingReferrals: pending}, nil
}
