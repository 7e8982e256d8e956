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

// mongodbCommissionRepository implements CommissionRepository using MongoDB
type mongodbCommissionRepository struct {
	commissions *mongo.Collection
	legacy      *mongo.Collection
}

// NewCommissionRepository creates a new MongoDB-based commission repository.
func NewCommissionRepository(db *mongo.Database) CommissionRepository {
	return &mongodbCommissionRepository{
		commissions: db.Collection(database.CollCommissions),
		legacy:      db.Collection(database.CollLegacy),
	}
}

// Upsert creates or replaces the commission for (course, trainer).
func (r *mongodbCommissionRepository) Upsert(ctx context.Context, c *model.Commission) (*model.Commission, error) {
	now := time.Now().UTC()

	var saved model.Commission
	err := r.commissions.FindOneAndUpdate(
		ctx,
		bson.M{"course_id": c.CourseID, "trainer_id": c.TrainerID},
		bson.M{
			"$set": bson.M{
				"commission_percent": c.CommissionPercent,
				"is_active":          c.IsActive,
				"last_updated_by":    c.LastUpdatedBy,
				"notes":              c.Notes,
				"updated_at":         now,
			},
			"$setOnInsert": bson.M{
				"_id":        uuid.NewString(),
				"created_by": c.CreatedBy,
				"created_at": now,
			},
		},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

// SetActive toggles a row
func (r *mongodbCommissionRepository) SetActive(ctx context.Context, courseID, trainerID string, active bool, adminID string) (*model.Commission, error) {
	var saved model.Commission
	err := r.commissions.FindOneAndUpdate(
		ctx,
		bson.M{"course_id": courseID, "trainer_id": trainerID},
		bson.M{"$set": bson.M{
			"is_active":       active,
			"last_updated_by": adminID,
			"updated_at":      time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrCommissionNotFound
		}
		return nil, err
	}

	return &saved, nil
}

// ListForCourse returns all rows for a course
func (r *mongodbCommissionRepository) ListForCourse(ctx context.Context, courseID string) ([]*model.Commission, error) {
	return r.find(ctx, bson.M{"course_id": courseID})
}

// ListActiveForCourse returns only the active rows for a course
func (r *mongodbCommissionRepository) ListActiveForCourse(ctx context.Context, courseID string) ([]*model.Commission, error) {
	return r.find(ctx, bson.M{"course_id": courseID, "is_active": true})
}

func (r *mongodbCommissionRepository) find(ctx context.Context, filter bson.M) ([]*model.Commission, error) {
	cursor, err := r.commissions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*model.Commission
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	return rows, nil
}

// GetLegacy returns the pre-migration single commission for a course
func (r *mongodbCommissionRepository) GetLegacy(ctx context.Context, courseID string) (*model.LegacyCommission, error) {
	var legacy model.LegacyCommission
	err := r.legacy.FindOne(ctx, bson.M{"_id": courseID}).Decode(&legacy)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}

	return &legacy, nil
}
