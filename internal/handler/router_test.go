package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gramfinance/gramfin-go/internal/chat"
	"github.com/gramfinance/gramfin-go/internal/credit"
	"github.com/gramfinance/gramfin-go/internal/domain"
	"github.com/gramfinance/gramfin-go/internal/infra/cache"
	"github.com/gramfinance/gramfin-go/internal/infra/memstore"
	"github.com/gramfinance/gramfin-go/internal/infra/observability"
	"github.com/gramfinance/gramfin-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// okSettler resolves every settlement immediately.
type okSettler struct{}

func (okSettler) Disburse(_ context.Context, intent *domain.SettlementIntent) domain.SettlementResult {
	return domain.SettlementResult{Success: true, TxHash: "0xdis" + intent.ID}
}

func (okSettler) CollectRepayment(_ context.Context, intent *domain.SettlementIntent) domain.SettlementResult {
	return domain.SettlementResult{Success: true, TxHash: "0xrep" + intent.ID}
}

// newTestServer wires the full stack on the in-memory store with a
// deterministic high score, the way main does it minus the chain.
func newTestServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memstore.New()

	provider := &credit.FixtureProvider{Fixed: domain.CreditSignals{
		UPITransactionCount: 40,
		AvgMonthlySpending:  4000,
		UtilityPaymentRatio: 0.90,
	}}
	scorer := credit.NewScorer(store, provider, func(min, _ int) int { return min }, cache.New[int](time.Minute), metrics, logger)
	evaluator := credit.NewEvaluator(credit.Policy{
		MinLoanAmount:    decimal.NewFromInt(500),
		MaxLoanAmount:    decimal.NewFromInt(5000),
		MinEligibleScore: 400,
	}, scorer, store)
	ledger := service.NewLoanLedger(store, evaluator, 0.03, metrics, logger)
	svc := service.NewFinancialService(store, scorer, ledger, okSettler{}, time.Second, 0.08, metrics, logger)

	chatSvc := chat.NewService(store, svc, 6, logger)
	chatHandler := chat.NewHandler(chatSvc, "gram_bot_2025", logger)

	srv := httptest.NewServer(NewRouter(svc, chatHandler, store, metrics, logger))
	t.Cleanup(srv.Close)
	return srv, store
}

func seedUser(store *memstore.Store, id string) {
	store.SeedUser(&domain.User{
		ID:            id,
		Phone:         "91" + id,
		WalletAddress: "0x8ba1f109551bD432803012645Ac136ddd64DBa72",
	})
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestProbes(t *testing.T) {
	srv, _ := newTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, srv.URL+"/healthz", &health); code != http.StatusOK {
		t.Errorf("healthz status = %d", code)
	}
	if health.Status != "healthy" {
		t.Errorf("health = %q, want healthy", health.Status)
	}

	if code := getJSON(t, srv.URL+"/readyz", nil); code != http.StatusOK {
		t.Errorf("readyz status = %d", code)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestApplyAndRepayLoanOverHTTP(t *testing.T) {
	srv, store := newTestServer(t)
	seedUser(store, "u1")

	var out outcomeResponse
	code := postJSON(t, srv.URL+"/v1/users/u1/loans", `{"amount": 2000, "duration_months": 6}`, &out)
	if code != http.StatusOK {
		t.Fatalf("apply status = %d", code)
	}
	if !out.Success {
		t.Fatalf("apply declined: %s", out.Message)
	}

	loan, err := store.OpenLoan(context.Background(), "u1")
	if err != nil || loan == nil {
		t.Fatalf("no open loan after approval: %v", err)
	}
	if loan.Status != domain.LoanActive {
		t.Errorf("loan status = %s, want active", loan.Status)
	}

	var fetched domain.Loan
	if code := getJSON(t, srv.URL+"/v1/loans/"+loan.ID, &fetched); code != http.StatusOK {
		t.Errorf("get loan status = %d", code)
	}
	if fetched.ID != loan.ID {
		t.Errorf("fetched loan %s, want %s", fetched.ID, loan.ID)
	}

	code = postJSON(t, srv.URL+"/v1/users/u1/loans/repay", ``, &out)
	if code != http.StatusOK || !out.Success {
		t.Fatalf("repay failed: status=%d message=%s", code, out.Message)
	}
}

func TestApplyLoan_DeclinedIsStillHTTP200(t *testing.T) {
	srv, store := newTestServer(t)
	seedUser(store, "u2")

	var out outcomeResponse
	code := postJSON(t, srv.URL+"/v1/users/u2/loans", `{"amount": 9000, "duration_months": 6}`, &out)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a declined application", code)
	}
	if out.Success {
		t.Error("out-of-bounds amount must be declined")
	}
}

func TestGetLoan_UnknownIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/v1/loans/nope", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestSavingsEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	seedUser(store, "u3")

	var out outcomeResponse
	postJSON(t, srv.URL+"/v1/users/u3/savings/deposits", `{"amount": 150}`, &out)
	if !out.Success {
		t.Fatalf("deposit failed: %s", out.Message)
	}

	var bal struct {
		Balance decimal.Decimal `json:"balance"`
		Rate    float64         `json:"annual_interest_rate"`
	}
	getJSON(t, srv.URL+"/v1/users/u3/savings", &bal)
	if !bal.Balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("balance = %s, want 150", bal.Balance)
	}
	if bal.Rate != 0.08 {
		t.Errorf("annual_interest_rate = %v, want 0.08", bal.Rate)
	}

	var txns struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	getJSON(t, srv.URL+"/v1/users/u3/transactions", &txns)
	if len(txns.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1", len(txns.Transactions))
	}

	var ov domain.AccountOverview
	getJSON(t, srv.URL+"/v1/users/u3/overview", &ov)
	if !ov.SavingsBalance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("overview balance = %s, want 150", ov.SavingsBalance)
	}
	if ov.CreditScore < domain.MinScore || ov.CreditScore > domain.MaxScore {
		t.Errorf("overview score %d out of bounds", ov.CreditScore)
	}
}

func TestWebhookVerificationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=gram_bot_2025&hub.challenge=777")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=777")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp2.StatusCode)
	}
}

// TestWebhookLoanFlow drives the whole stack the way production traffic
// does: a WhatsApp delivery onboards the sender, applies for a loan,
// settles it and answers in the webhook response.
func TestWebhookLoanFlow(t *testing.T) {
	srv, store := newTestServer(t)

	payload := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "919876543210", "text": {"body": "loan 2000"}}
	  ]}}]}]
	}`
	var out struct {
		Replies []chat.Reply `json:"replies"`
	}
	if code := postJSON(t, srv.URL+"/webhook", payload, &out); code != http.StatusOK {
		t.Fatalf("webhook status = %d", code)
	}
	if len(out.Replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(out.Replies))
	}
	if !strings.Contains(out.Replies[0].Text, "Loan approved") {
		t.Fatalf("reply = %q, want an approval", out.Replies[0].Text)
	}

	user, err := store.GetUserByPhone(context.Background(), "919876543210")
	if err != nil {
		t.Fatalf("sender not onboarded: %v", err)
	}
	loan, err := store.OpenLoan(context.Background(), user.ID)
	if err != nil || loan == nil {
		t.Fatalf("no open loan: %v", err)
	}
	if loan.Status != domain.LoanActive {
		t.Errorf("loan status = %s, want active", loan.Status)
	}
	if loan.DisburseTxHash == "" {
		t.Error("disbursement hash not recorded")
	}
}

func TestLedgerMetricsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedUser(store, "u4")

	var out outcomeResponse
	postJSON(t, srv.URL+"/v1/users/u4/loans", `{"amount": 2000, "duration_months": 6}`, &out)

	var m domain.LedgerMetrics
	if code := getJSON(t, srv.URL+"/v1/metrics/ledger", &m); code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	if m.LoansApproved != 1 {
		t.Errorf("loans approved = %d, want 1", m.LoansApproved)
	}
}

func TestSettlementReplayEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var out struct {
		Replayed int `json:"replayed"`
	}
	if code := postJSON(t, srv.URL+"/v1/settlements/replay", ``, &out); code != http.StatusOK {
		t.Fatalf("replay status = %d", code)
	}
	if out.Replayed != 0 {
		t.Errorf("replayed = %d, want 0 with no pending intents", out.Replayed)
	}
}
