package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/service"
	errs "github.com/tatidance/economy/pkg/errors"
)

const callerKey = "caller_id"

// requireAdmin gates admin-only routes on the X-Account-ID header. The
// header is trusted here; authentication itself lives in the identity layer
// in front of this service.
func requireAdmin(caps service.CapabilityChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := c.GetHeader("X-Account-ID")
		if callerID == "" || !caps.IsAdmin(callerID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin capability required"})
			return
		}
		c.Set(callerKey, callerID)
		c.Next()
	}
}

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	case errors.Is(err, errs.ErrInvalidAmount), errors.Is(err, errs.ErrInvalidPercent),
		errors.Is(err, errs.ErrSelfReferral), errors.Is(err, errs.ErrReferralCapExceeded),
		errors.Is(err, errs.ErrKeyExpiredOrExhausted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidCode), errors.Is(err, errs.ErrKeyNotFound),
		errors.Is(err, errs.ErrCommissionNotFound), errors.Is(err, errs.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrDailyBonusAlreadyClaimed),
		errors.Is(err, errs.ErrCodeAlreadyApplied), errors.Is(err, errs.ErrKeyAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func walletResponse(w *model.Wallet, tx *model.Transaction) gin.H {
	return gin.H{"wallet": w, "transaction": tx}
}

// grantHandler handles POST /api/economy/grant (admin)
func grantHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.GrantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		wallet, tx, err := svc.Grant(c.Request.Context(), req.AccountID, req.Amount, model.TxAdminGrant, req.Reason, req.Description)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, walletResponse(wallet, tx))
	}
}

// spendHandler handles POST /api/economy/spend
func spendHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.SpendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		txType := model.TxPurchaseSpend
		switch req.Reason {
		case "training_plan":
			txType = model.TxTrainingPlanCharge
		case "video_review":
			txType = model.TxVideoReviewCharge
		}

		wallet, tx, err := svc.Spend(c.Request.Context(), req.AccountID, req.Amount, txType, req.Reason, req.Description)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, walletResponse(wallet, tx))
	}
}

// adjustHandler handles POST /api/economy/adjust (admin)
func adjustHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.AdjustRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		wallet, tx, err := svc.AdminAdjust(c.Request.Context(), c.GetString(callerKey), req.AccountID, req.Amount, req.Note)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, walletResponse(wallet, tx))
	}
}

// dailyBonusHandler handles POST /api/economy/daily-bonus
func dailyBonusHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.DailyBonusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		wallet, tx, err := svc.ClaimDailyBonus(c.Request.Context(), req.AccountID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, walletResponse(wallet, tx))
	}
}

// redeemHandler handles POST /api/economy/redeem
func redeemHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.RedeemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		wallet, tx, err := svc.RedeemKey(c.Request.Context(), req.Code, req.AccountID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, walletResponse(wallet, tx))
	}
}

// balanceHandler handles GET /api/economy/balance/:accountId
func balanceHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet, err := svc.Balance(c.Request.Context(), c.Param("accountId"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, model.BalanceResponse{
			AccountID:        wallet.ID,
			Balance:          wallet.Balance,
			TotalEarned:      wallet.TotalEarned,
			TotalSpent:       wallet.TotalSpent,
			LastDailyBonusAt: wallet.LastDailyBonusAt,
		})
	}
}

// transactionsHandler handles GET /api/economy/transactions/:accountId
func transactionsHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}

		txs, err := svc.Transactions(c.Request.Context(), c.Param("accountId"), limit)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

// setCommissionHandler handles POST /api/commissions (admin)
func setCommissionHandler(svc *service.CommissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.SetCommissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		commission, err := svc.SetCommission(c.Request.Context(), c.GetString(callerKey), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, commission)
	}
}

// setCommissionActiveHandler handles PATCH /api/commissions/:courseId/:trainerId/active (admin)
func setCommissionActiveHandler(svc *service.CommissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.SetActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		commission, err := svc.SetCommissionActive(c.Request.Context(), c.GetString(callerKey), c.Param("courseId"), c.Param("trainerId"), *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, commission)
	}
}

// listCommissionsHandler handles GET /api/commissions/course/:courseId
func listCommissionsHandler(svc *service.CommissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.ListForCourse(c.Request.Context(), c.Param("courseId"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"commissions": rows})
	}
}

// previewPayoutHandler handles GET /api/commissions/course/:courseId/preview?price=N (admin)
func previewPayoutHandler(svc *service.CommissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		price, err := strconv.ParseInt(c.Query("price"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price query parameter is required"})
			return
		}

		preview, err := svc.PreviewPayout(c.Request.Context(), c.GetString(callerKey), c.Param("courseId"), price)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, preview)
	}
}

// courseSoldHandler handles POST /api/events/course-sold. The single sale
// event feeds both the commission split and the referral first-purchase
// check; the referral outcome never fails the commission payout, and a
// partial payout is reported per trainer rather than as one boolean.
func courseSoldHandler(commissionSvc *service.CommissionService, referralSvc *service.ReferralService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev model.CourseSoldEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := commissionSvc.OnCourseSold(c.Request.Context(), &ev)

		// Self-gating: a no-op for buyers without an eligible referral.
		referral, refErr := referralSvc.CheckAndAwardFirstPurchaseBonus(c.Request.Context(), ev.BuyerID)

		if err != nil {
			var partial *errs.PartialPayoutError
			if errors.As(err, &partial) {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":  err.Error(),
					"payout": result,
				})
				return
			}
			respondError(c, err)
			return
		}

		resp := gin.H{"payout": result}
		if refErr != nil {
			// Trainer payouts already committed; a failed referral check must
			// not look like a replayable failure of the whole event.
			resp["referral_error"] = refErr.Error()
			c.JSON(http.StatusOK, resp)
			return
		}
		if referral != nil {
			resp["first_purchase_bonus"] = referral
		}
		c.JSON(http.StatusOK, resp)
	}
}

// referralCodeHandler handles POST /api/referrals/code
func referralCodeHandler(svc *service.ReferralService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.CodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		rc, err := svc.GetOrCreateCode(c.Request.Context(), req.UserID, req.UserName)
		if err != nil {
			respondError(c, err)
			return
		}

		stats, err := svc.Stats(c.Request.Context(), req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, model.CodeResponse{Code: rc.Code, Stats: *stats})
	}
}

// applyCodeHandler handles POST /api/referrals/apply
func applyCodeHandler(svc *service.ReferralService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ApplyCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		referral, err := svc.ApplyCode(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, referral)
	}
}

// verifyReferralHandler handles POST /api/referrals/verify. Repeat calls
// after the first successful verification are deliberate no-ops.
func verifyReferralHandler(svc *service.ReferralService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.UserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		referral, err := svc.CompleteAfterVerification(c.Request.Context(), req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		if referral == nil {
			c.JSON(http.StatusOK, gin.H{"message": "no pending referral"})
			return
		}

		c.JSON(http.StatusOK, referral)
	}
}

// firstPurchaseHandler handles POST /api/referrals/first-purchase
func firstPurchaseHandler(svc *service.ReferralService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.UserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		referral, err := svc.CheckAndAwardFirstPurchaseBonus(c.Request.Context(), req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		if referral == nil {
			c.JSON(http.StatusOK, gin.H{"message": "no eligible referral"})
			return
		}

		c.JSON(http.StatusOK, referral)
	}
}

// createKeyHandler handles POST /api/admin/keys (admin)
func createKeyHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.CreateKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		key, err := svc.CreateKey(c.Request.Context(), c.GetString(callerKey), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, key)
	}
}

// listKeysHandler handles GET /api/admin/keys (admin)
func listKeysHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := svc.ListKeys(c.Request.Context(), c.GetString(callerKey))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"keys": keys})
	}
}

// deleteKeyHandler handles DELETE /api/admin/keys/:id (admin)
func deleteKeyHandler(svc *service.EconomyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteKey(c.Request.Context(), c.GetString(callerKey), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "key deleted"})
	}
}
