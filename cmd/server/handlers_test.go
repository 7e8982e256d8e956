package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/internal/repository/memory"
	"github.com/tatidance/economy/internal/service"
	"github.com/tatidance/economy/pkg/config"
	"github.com/tatidance/economy/pkg/notify"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memory.WalletRepository, *memory.ReferralRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wallets := memory.NewWalletRepository()
	keys := memory.NewKeyRepository()
	commissions := memory.NewCommissionRepository()
	referrals := memory.NewReferralRepository()

	caps := service.StaticAdminSet{"admin1": true}
	sink := &notify.LogSink{Logger: logger}
	cfg := config.DefaultEconomy()

	economySvc := service.NewEconomyService(wallets, keys, caps, sink, cfg.DailyBonusAmount, logger)
	commissionSvc := service.NewCommissionService(commissions, economySvc, caps, logger)
	referralSvc := service.NewReferralService(referrals, economySvc, cfg, logger)

	return setupRouter(economySvc, commissionSvc, referralSvc, caps), wallets, referrals
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any, adminID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if adminID != "" {
		req.Header.Set("X-Account-ID", adminID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGrantRequiresAdmin(t *testing.T) {
	router, wallets, _ := newTestRouter(t)
	body := model.GrantRequest{AccountID: "alice", Amount: 100, Reason: "promo"}

	rec := doRequest(t, router, http.MethodPost, "/api/economy/grant", body, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/economy/grant", body, "not-admin")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/economy/grant", body, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(100), wallets.Balance("alice"))
}

func TestSpendInsufficientBalance(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/economy/spend", model.SpendRequest{
		AccountID: "broke", Amount: 10, Reason: "course",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient balance")
}

func TestSpendMapsReasonToChargeType(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/economy/grant", model.GrantRequest{
		AccountID: "dancer", Amount: 50, Reason: "promo",
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/economy/spend", model.SpendRequest{
		AccountID: "dancer", Amount: 20, Reason: "training_plan",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	tx := resp["transaction"].(map[string]any)
	require.Equal(t, string(model.TxTrainingPlanCharge), tx["type"])
	require.Equal(t, float64(-20), tx["amount"])
}

func TestBalanceAndTransactionsEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/economy/grant", model.GrantRequest{
		AccountID: "alice", Amount: 30, Reason: "promo",
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/economy/balance/alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var balance model.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	require.Equal(t, "alice", balance.AccountID)
	require.Equal(t, int64(30), balance.Balance)

	rec = doRequest(t, router, http.MethodGet, "/api/economy/transactions/alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	require.Len(t, resp["transactions"], 1)
}

func TestTransactionsRejectsMalformedLimit(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/economy/transactions/alice?limit=abc", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/economy/transactions/alice?limit=-1", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/economy/transactions/alice?limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDailyBonusConflictOnRepeat(t *testing.T) {
	router, _, _ := newTestRouter(t)
	body := model.DailyBonusRequest{AccountID: "alice"}

	rec := doRequest(t, router, http.MethodPost, "/api/economy/daily-bonus", body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/economy/daily-bonus", body, "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestKeyLifecycleOverHTTP(t *testing.T) {
	router, wallets, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/admin/keys", model.CreateKeyRequest{
		Code: "DANCE-2024", CoinAmount: 25, MaxUses: 1,
	}, "admin1")
	require.Equal(t, http.StatusCreated, rec.Code)

	// Codes are case-insensitive on redemption
	rec = doRequest(t, router, http.MethodPost, "/api/economy/redeem", model.RedeemRequest{
		AccountID: "alice", Code: "dance-2024",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(25), wallets.Balance("alice"))

	// Single-use key is spent
	rec = doRequest(t, router, http.MethodPost, "/api/economy/redeem", model.RedeemRequest{
		AccountID: "bob", Code: "DANCE-2024",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown code
	rec = doRequest(t, router, http.MethodPost, "/api/economy/redeem", model.RedeemRequest{
		AccountID: "bob", Code: "NO-SUCH",
	}, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/admin/keys", nil, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	require.Len(t, resp["keys"], 1)
}

func TestCourseSoldEventPaysCommissions(t *testing.T) {
	router, wallets, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/commissions", model.SetCommissionRequest{
		CourseID: "salsa-101", TrainerID: "trainerA", Percent: 30,
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/commissions", model.SetCommissionRequest{
		CourseID: "salsa-101", TrainerID: "trainerB", Percent: 15,
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/events/course-sold", model.CourseSoldEvent{
		CourseID: "salsa-101", CourseName: "Salsa 101", BuyerID: "buyer1", PriceInCoins: 100,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(30), wallets.Balance("trainerA"))
	require.Equal(t, int64(15), wallets.Balance("trainerB"))

	rec = doRequest(t, router, http.MethodGet, "/api/commissions/course/salsa-101", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	require.Len(t, resp["commissions"], 2)
}

func TestReferralFlowOverHTTP(t *testing.T) {
	router, wallets, _ := newTestRouter(t)
	cfg := config.DefaultEconomy()

	rec := doRequest(t, router, http.MethodPost, "/api/referrals/code", model.CodeRequest{
		UserID: "tati", UserName: "Tatiana",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var code model.CodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
	require.NotEmpty(t, code.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/referrals/apply", model.ApplyCodeRequest{
		Code: code.Code, UserID: "newbie",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	// Applying a second code for the same user conflicts
	rec = doRequest(t, router, http.MethodPost, "/api/referrals/apply", model.ApplyCodeRequest{
		Code: code.Code, UserID: "newbie",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/referrals/verify", model.UserRequest{UserID: "newbie"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, cfg.ReferrerRewardOnSignup, wallets.Balance("tati"))
	require.Equal(t, cfg.ReferredRewardOnSignup, wallets.Balance("newbie"))

	// Repeat verification is a no-op
	rec = doRequest(t, router, http.MethodPost, "/api/referrals/verify", model.UserRequest{UserID: "newbie"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "no pending referral")

	rec = doRequest(t, router, http.MethodPost, "/api/referrals/first-purchase", model.UserRequest{UserID: "newbie"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, cfg.ReferrerRewardOnSignup+cfg.FirstPurchaseBonusReferrer, wallets.Balance("tati"))
}

func TestCourseSoldAwardsFirstPurchaseBonus(t *testing.T) {
	router, wallets, _ := newTestRouter(t)
	cfg := config.DefaultEconomy()

	rec := doRequest(t, router, http.MethodPost, "/api/referrals/code", model.CodeRequest{
		UserID: "tati", UserName: "Tatiana",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var code model.CodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))

	rec = doRequest(t, router, http.MethodPost, "/api/referrals/apply", model.ApplyCodeRequest{
		Code: code.Code, UserID: "buyer1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/api/referrals/verify", model.UserRequest{UserID: "buyer1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Fund the buyer and let the sale event trigger the bonus
	rec = doRequest(t, router, http.MethodPost, "/api/events/course-sold", model.CourseSoldEvent{
		CourseID: "salsa-101", CourseName: "Salsa 101", BuyerID: "buyer1", PriceInCoins: 100,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	require.Contains(t, resp, "first_purchase_bonus")
	require.Equal(t, cfg.ReferredRewardOnSignup+cfg.FirstPurchaseBonusReferred, wallets.Balance("buyer1"))
}

func TestCourseSoldReportsPayoutWhenReferralCheckFails(t *testing.T) {
	router, wallets, referrals := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/commissions", model.SetCommissionRequest{
		CourseID: "salsa-101", TrainerID: "trainerA", Percent: 30,
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	referrals.FailBonusClaims(errors.New("store unavailable"))

	// The trainers are paid before the referral check runs; a failed check
	// must not turn the whole event into a replayable error.
	rec = doRequest(t, router, http.MethodPost, "/api/events/course-sold", model.CourseSoldEvent{
		CourseID: "salsa-101", CourseName: "Salsa 101", BuyerID: "buyer1", PriceInCoins: 100,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(30), wallets.Balance("trainerA"))

	resp := decodeBody(t, rec)
	require.Contains(t, resp, "payout")
	require.Equal(t, "store unavailable", resp["referral_error"])
}

func TestPreviewPayoutRequiresPrice(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/commissions", model.SetCommissionRequest{
		CourseID: "salsa-101", TrainerID: "trainerA", Percent: 30,
	}, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/commissions/course/salsa-101/preview", nil, "admin1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/commissions/course/salsa-101/preview?price=200", nil, "admin1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "60")
}
