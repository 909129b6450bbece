package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mizpos/terminal/internal/domain"
	"mizpos/terminal/internal/service"
	"mizpos/terminal/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, "test-terminal", time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*"), repo
}

func loginAs(t *testing.T, handler http.Handler, staffNumber string, pin string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"staff_number": staffNumber,
		"pin":          pin,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (body: %s)", staffNumber, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestCashierCannotRebuildSummary(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "9000002", "482915")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/summary/rebuild", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
}

func TestProductLookupNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "9000002", "482915")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/lookup?code=0000000000000", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutFlowRecordsSaleAndSummary(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "9000002", "482915")

	if err := repo.UpsertProduct(context.Background(), domain.Product{
		ID: "p1", JANCode: "2784702901978", Name: "Book A", CircleName: "circle-x", Price: 500, IsBook: true,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	// Scan resolves the product.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/lookup?code=2784702901978", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Completed sale posts to the transaction log.
	payload, _ := json.Marshal(domain.Transaction{
		Items: []domain.TransactionItem{
			{ProductID: "p1", JANCode: "2784702901978", Name: "Book A", CircleName: "circle-x", Quantity: 2, UnitPrice: 500, Subtotal: 1000},
		},
		Payments:    []domain.Payment{{Method: domain.PaymentCash, Amount: 1000}},
		TotalAmount: 1000,
	})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if created.Transaction.ID == "" {
		t.Fatalf("expected assigned transaction id")
	}
	if created.Transaction.StaffID != "9000002" {
		t.Fatalf("expected staff id from token, got %q", created.Transaction.StaffID)
	}

	// Summary reflects the sale.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sales/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary failed: %d", rec.Code)
	}
	var summaryBody struct {
		Summaries []domain.SalesSummary `json:"summaries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&summaryBody); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summaryBody.Summaries) != 1 {
		t.Fatalf("expected 1 summary row, got %d", len(summaryBody.Summaries))
	}
	if summaryBody.Summaries[0].TotalQuantity != 2 || summaryBody.Summaries[0].TotalAmount != 1000 {
		t.Fatalf("unexpected summary row: %+v", summaryBody.Summaries[0])
	}
}

func TestCheckoutRejectsUnsupportedPaymentMethod(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "9000002", "482915")

	payload, _ := json.Marshal(domain.Transaction{
		Items: []domain.TransactionItem{
			{ProductID: "p1", Quantity: 1, UnitPrice: 500, Subtotal: 500},
		},
		Payments:    []domain.Payment{{Method: "credit", Amount: 500}},
		TotalAmount: 500,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported method, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestShiftLifecycleOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "9000001", "770031")

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var reader *bytes.Reader
		if body != nil {
			payload, _ := json.Marshal(body)
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Not yet opened.
	rec := do(http.MethodGet, "/api/v1/shifts/today", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("shift status: %d", rec.Code)
	}
	var status map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&status)
	if status["opened"] != false {
		t.Fatalf("expected opened:false, got %v", status["opened"])
	}

	// Open with a 10000 float.
	rec = do(http.MethodPost, "/api/v1/shifts/open", domain.OpeningReportRequest{
		Denominations: []domain.DenominationCount{{Denomination: 1000, Count: 10}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Second open conflicts.
	rec = do(http.MethodPost, "/api/v1/shifts/open", domain.OpeningReportRequest{
		Denominations: []domain.DenominationCount{{Denomination: 1000, Count: 10}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second open, got %d", rec.Code)
	}

	// Close with a perfectly counted drawer.
	rec = do(http.MethodPost, "/api/v1/shifts/close", domain.CloseShiftRequest{
		Denominations: []domain.DenominationCount{{Denomination: 1000, Count: 10}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closeBody struct {
		Report domain.ClosingReport `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&closeBody); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closeBody.Report.Variance != 0 {
		t.Fatalf("expected zero variance, got %d", closeBody.Report.Variance)
	}

	// Closing history survives the day clear.
	rec = do(http.MethodGet, "/api/v1/reports/closing", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("closing reports: %d", rec.Code)
	}
	var reports struct {
		Reports []domain.ClosingReport `json:"reports"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&reports); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if len(reports.Reports) != 1 {
		t.Fatalf("expected 1 closing report, got %d", len(reports.Reports))
	}
}

func TestLoginRateLimiter(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"staff_number": "9000002", "pin": "wrong"})
	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}
