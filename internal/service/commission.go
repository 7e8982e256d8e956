package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/repository"
	errs "github.com/tatidance/economy/pkg/errors"
)

// CommissionService is the commission split engine: on a course sale it pays
// every active trainer row its independent share of the full price.
type CommissionService struct {
	commissions repository.CommissionRepository
	economy     *EconomyService
	caps        CapabilityChecker
	logger      *slog.Logger
}

// NewCommissionService creates a new commission service.
func NewCommissionService(commissions repository.CommissionRepository, economy *EconomyService, caps CapabilityChecker, logger *slog.Logger) *CommissionService {
	return &CommissionService{
		commissions: commissions,
		economy:     economy,
		caps:        caps,
		logger:      logger,
	}
}

// ShareCoins computes a trainer's share of a sale price, rounding half up.
func ShareCoins(price int64, percent int32) int64 {
	return (price*int64(percent) + 50) / 100
}

// SetCommission creates or replaces the (course, trainer) commission row.
func (s *CommissionService) SetCommission(ctx context.Context, adminID string, req *model.SetCommissionRequest) (*model.Commission, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, errs.ErrUnauthorized
	}
	if req.Percent < 0 || req.Percent > 100 {
		return nil, errs.ErrInvalidPercent
	}

	return s.commissions.Upsert(ctx, &model.Commission{
		CourseID:          req.CourseID,
		TrainerID:         req.TrainerID,
		CommissionPercent: req.Percent,
		IsActive:          true,
		CreatedBy:         adminID,
		LastUpdatedBy:     adminID,
		Notes:             req.Notes,
	})
}

// SetCommissionActive toggles a commission row.
func (s *CommissionService) SetCommissionActive(ctx context.Context, adminID, courseID, trainerID string, active bool) (*model.Commission, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, errs.ErrUnauthorized
	}

	return s.commissions.SetActive(ctx, courseID, trainerID, active, adminID)
}

// ListForCourse returns every commission row of a course.
func (s *CommissionService) ListForCourse(ctx context.Context, courseID string) ([]*model.Commission, error) {
	return s.commissions.ListForCourse(ctx, courseID)
}

// PayoutResult is the structured outcome of a course-sale split.
type PayoutResult struct {
	CourseID       string               `json:"course_id"`
	Price          int64                `json:"price"`
	Payouts        []errs.TrainerPayout `json:"payouts"`
	TotalPaid      int64                `json:"total_paid"`
	NoCommission   bool                 `json:"no_commission,omitempty"`
	LegacyFallback bool                 `json:"legacy_fallback,omitempty"`
}

// OnCourseSold pays each active trainer commission for the sold course. Each
// trainer's grant is its own atomic step; the split as a whole is not, so a
// partial failure is reported per trainer and nothing is rolled back or
// retried automatically.
func (s *CommissionService) OnCourseSold(ctx context.Context, ev *model.CourseSoldEvent) (*PayoutResult, error) {
	result := &PayoutResult{CourseID: ev.CourseID, Price: ev.PriceInCoins}

	rows, err := s.commissions.ListActiveForCourse(ctx, ev.CourseID)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		legacy, err := s.commissions.GetLegacy(ctx, ev.CourseID)
		if err != nil {
			return nil, err
		}
		if legacy == nil {
			s.logger.Info("no commission configured", "course_id", ev.CourseID)
			result.NoCommission = true
			return result, nil
		}
		result.LegacyFallback = true
		rows = []*model.Commission{{
			CourseID:          legacy.CourseID,
			TrainerID:         legacy.TrainerID,
			CommissionPercent: legacy.CommissionPercent,
			IsActive:          true,
		}}
	}

	failed := false
	for _, row := range rows {
		payout := errs.TrainerPayout{
			TrainerID: row.TrainerID,
			Percent:   row.CommissionPercent,
			Coins:     ShareCoins(ev.PriceInCoins, row.CommissionPercent),
		}

		if payout.Coins == 0 {
			payout.Skipped = true
			s.logger.Info("skipping zero-coin commission",
				"course_id", ev.CourseID, "trainer_id", row.TrainerID, "percent", row.CommissionPercent)
			result.Payouts = append(result.Payouts, payout)
			continue
		}

		desc := fmt.Sprintf("Course sale: %s (buyer %s)", ev.CourseName, ev.BuyerName)
		_, _, err := s.economy.Grant(ctx, row.TrainerID, payout.Coins, model.TxCourseSaleEarning, ev.CourseID, desc)
		if err != nil {
			failed = true
			payout.Error = err.Error()
			s.logger.Error("trainer payout failed",
				"course_id", ev.CourseID, "trainer_id", row.TrainerID, "coins", payout.Coins, "error", err)
		} else {
			payout.Paid = true
			result.TotalPaid += payout.Coins
		}
		result.Payouts = append(result.Payouts, payout)
	}

	if failed {
		return result, &errs.PartialPayoutError{CourseID: ev.CourseID, Payouts: result.Payouts}
	}
	return result, nil
}

// PreviewPayout is the admin view of what a sale at the given price would
// pay across active rows, including the payout-to-price ratio. Percentages
// are applied independently, so the ratio may exceed 1.0.
func (s *CommissionService) PreviewPayout(ctx context.Context, adminID, courseID string, price int64) (*model.PayoutPreview, error) {
	if !s.caps.IsAdmin(adminID) {
		return nil, errs.ErrUnauthorized
	}
	if price <= 0 {
		return nil, errs.ErrInvalidAmount
	}

	rows, err := s.commissions.ListActiveForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	preview := &model.PayoutPreview{CourseID: courseID, Price: price, Shares: []model.PayoutPreviewRow{}}
	for _, row := range rows {
		coins := ShareCoins(price, row.CommissionPercent)
		preview.Shares = append(preview.Shares, model.PayoutPreviewRow{
			TrainerID: row.TrainerID,
			Percent:   row.CommissionPercent,
			Coins:     coins,
		})
		preview.TotalPayout += coins
	}
	preview.Ratio = float64(preview.TotalPayout) / float64(price)

	return preview, nil
}
