package repository

import (
	"context"

	"github.com/tatidance/economy/internal/model"
)

// CommissionRepository stores per-(course, trainer) commission rows and the
// legacy single-trainer fallback.
type CommissionRepository interface {
	// Upsert creates or replaces the commission for (course, trainer).
	Upsert(ctx context.Context, c *model.Commission) (*model.Commission, error)

	// SetActive toggles a row. Fails with ErrCommissionNotFound.
	SetActive(ctx context.Context, courseID, trainerID string, active bool, adminID string) (*model.Commission, error)

	// ListForCourse returns all rows for a course, active or not.
	ListForCourse(ctx context.Context, courseID string) ([]*model.Commission, error)

	// ListActiveForCourse returns only the active rows for a course.
	ListActiveForCourse(ctx context.Context, courseID string) ([]*model.Commission, error)

	// GetLegacy returns the pre-migration single commission for a course,
	// or (nil, nil) when none exists.
	GetLegacy(ctx context.Context, courseID string) (*model.LegacyCommission, error)
}
