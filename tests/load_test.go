// End-to-end concurrency tests against a running server. They exercise the
// conditional-write guards through the full HTTP and MongoDB stack, which the
// in-memory unit tests cannot. Start the server first:
//
//	ADMIN_IDS=admin1 go run ./cmd/server
//
// The tests skip themselves when no server is reachable at BASE_URL.
package load

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tatidance/economy/internal/model"
	"github.com/tatidance/economy/pkg/config"
)

var (
	baseURL     = config.GetEnv("BASE_URL", "http://localhost:8080")
	testAdminID = config.GetEnv("TEST_ADMIN_ID", "admin1")
)

func requireServer(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Skipf("no server reachable at %s", baseURL)
}

func postJSON(t *testing.T, path string, body any, adminID string) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if adminID != "" {
		req.Header.Set("X-Account-ID", adminID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// TestBoundedKeyRedemptionStorm fires 50 concurrent redemptions of a key with
// 5 uses left. Exactly 5 must succeed; the rest must be rejected cleanly.
func TestBoundedKeyRedemptionStorm(t *testing.T) {
	requireServer(t)

	// Unique code per run so the test does not need a clean database
	code := fmt.Sprintf("STORM-%d", time.Now().UnixNano())
	status, body := postJSON(t, "/api/admin/keys", model.CreateKeyRequest{
		Code: code, CoinAmount: 10, MaxUses: 5,
	}, testAdminID)
	if status != http.StatusCreated {
		t.Fatalf("create key: status %d, body %v", status, body)
	}

	const concurrentRequests = 50
	var (
		successCount int64
		rejectCount  int64
		otherCount   int64
		wg           sync.WaitGroup
	)

	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			status, _ := postJSON(t, "/api/economy/redeem", model.RedeemRequest{
				AccountID: fmt.Sprintf("storm_user_%d_%s", n, code),
				Code:      code,
			}, "")
			switch status {
			case http.StatusOK:
				atomic.AddInt64(&successCount, 1)
			case http.StatusBadRequest, http.StatusConflict:
				atomic.AddInt64(&rejectCount, 1)
			default:
				atomic.AddInt64(&otherCount, 1)
			}
		}(i)
	}
	wg.Wait()

	if successCount != 5 {
		t.Errorf("expected exactly 5 successful redemptions, got %d", successCount)
	}
	if rejectCount != concurrentRequests-5 {
		t.Errorf("expected %d rejections, got %d", concurrentRequests-5, rejectCount)
	}
	if otherCount != 0 {
		t.Errorf("expected no unexpected statuses, got %d", otherCount)
	}
}

// TestDailyBonusDoubleClaim fires 10 concurrent daily-bonus claims from the
// same account. The 24h window guard must let exactly one through.
func TestDailyBonusDoubleClaim(t *testing.T) {
	requireServer(t)

	accountID := fmt.Sprintf("double_claim_%d", time.Now().UnixNano())

	const concurrentRequests = 10
	var (
		successCount  int64
		conflictCount int64
		otherCount    int64
		wg            sync.WaitGroup
	)

	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, _ := postJSON(t, "/api/economy/daily-bonus", model.DailyBonusRequest{AccountID: accountID}, "")
			switch status {
			case http.StatusOK:
				atomic.AddInt64(&successCount, 1)
			case http.StatusConflict:
				atomic.AddInt64(&conflictCount, 1)
			default:
				atomic.AddInt64(&otherCount, 1)
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 successful claim, got %d", successCount)
	}
	if conflictCount != concurrentRequests-1 {
		t.Errorf("expected %d conflicts, got %d", concurrentRequests-1, conflictCount)
	}
	if otherCount != 0 {
		t.Errorf("expected no unexpected statuses, got %d", otherCount)
	}

	// The wallet must reflect exactly one bonus
	resp, err := http.Get(fmt.Sprintf("%s/api/economy/balance/%s", baseURL, accountID))
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	defer resp.Body.Close()

	var balance model.BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.TotalEarned == 0 || balance.LastDailyBonusAt == nil {
		t.Errorf("expected one recorded bonus, got balance %+v", balance)
	}
}
