package model

import "time"

// Commission is one trainer's percentage share of a course's sale price.
// A course may carry several active commissions; each trainer's share is
// computed independently from the full price, so percentages across trainers
// are not required to sum to 100 or less.
type Commission struct {
	ID                string    `bson:"_id" json:"id"`
	CourseID          string    `bson:"course_id" json:"course_id"`
	TrainerID         string    `bson:"trainer_id" json:"trainer_id"`
	CommissionPercent int32     `bson:"commission_percent" json:"commission_percent"`
	IsActive          bool      `bson:"is_active" json:"is_active"`
	CreatedBy         string    `bson:"created_by" json:"created_by"`
	LastUpdatedBy     string    `bson:"last_updated_by" json:"last_updated_by"`
	Notes             string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt         time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at" json:"updated_at"`
}

// LegacyCommission is the pre-split single-trainer commission, kept as a
// fallback for courses that were never migrated to per-trainer rows.
type LegacyCommission struct {
	CourseID          string `bson:"_id" json:"course_id"`
	TrainerID         string `bson:"trainer_id" json:"trainer_id"`
	CommissionPercent int32  `bson:"commission_percent" json:"commission_percent"`
}

// SetCommissionRequest creates or replaces the (course, trainer) commission.
type SetCommissionRequest struct {
	CourseID  string `json:"course_id" binding:"required"`
	TrainerID string `json:"trainer_id" binding:"required"`
	Percent   int32  `json:"percent" binding:"gte=0,lte=100"`
	Notes     string `json:"notes"`
}

// SetActiveRequest toggles a commission row.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// CourseSoldEvent is raised by the purchase flow after the buyer's own spend
// succeeded. Price is the full sale price in coins.
type CourseSoldEvent struct {
	CourseID     string `json:"course_id" binding:"required"`
	CourseName   string `json:"course_name" binding:"required"`
	BuyerID      string `json:"buyer_id" binding:"required"`
	BuyerName    string `json:"buyer_name"`
	PriceInCoins int64  `json:"price_in_coins" binding:"required,gt=0"`
}

// PayoutPreview is the admin view of what a sale at a given price would pay
// out. Ratio above 1.0 means the configured percentages exceed the price.
type PayoutPreview struct {
	CourseID    string             `json:"course_id"`
	Price       int64              `json:"price"`
	Shares      []PayoutPreviewRow `json:"shares"`
	TotalPayout int64              `json:"total_payout"`
	Ratio       float64            `json:"payout_to_price_ratio"`
}

// PayoutPreviewRow is one trainer's line in a payout preview.
type PayoutPreviewRow struct {
	TrainerID string `json:"trainer_id"`
	Percent   int32  `json:"percent"`
	Coins     int64  `json:"coins"`
}
