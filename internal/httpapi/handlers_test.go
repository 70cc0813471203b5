package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/metrics"
	"puntoventa/backend/internal/pricing"
	"puntoventa/backend/internal/sale"
	"puntoventa/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := sale.New(repo, nil, m, pricing.DefaultTaxRate)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, m.Handler(), "*")
}

// login authenticates against the seeded dev accounts and returns a bearer token.
func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return body["csrf_token"]
}

func postSale(t *testing.T, handler http.Handler, token, csrf string, saleReq domain.SaleRequest) *httptest.ResponseRecorder {
	t.Helper()

	payload, _ := json.Marshal(saleReq)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "cajera",
		"password": "wrong",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleSales_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.SaleRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrfToken(t, handler))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleSales_RequiresCSRF(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")

	rec := postSale(t, handler, token, "", domain.SaleRequest{
		Lines:    []domain.SaleLineRequest{{SKU: "SK-1", Quantity: 1}},
		CashPaid: 595,
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", rec.Code)
	}
}

func TestHandleSales_Commit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")
	csrf := csrfToken(t, handler)

	// Seeded SK-1 costs 500; two units tax to 1190.
	rec := postSale(t, handler, token, csrf, domain.SaleRequest{
		Lines:    []domain.SaleLineRequest{{SKU: "SK-1", Quantity: 2}},
		CashPaid: 1190,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SaleID < 1 || resp.Total != 1190 || resp.Timestamp == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandleSales_EmptyCart(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")
	csrf := csrfToken(t, handler)

	rec := postSale(t, handler, token, csrf, domain.SaleRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}

	var report map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["error_code"] != "EMPTY_CART" {
		t.Fatalf("expected EMPTY_CART, got %v", report["error_code"])
	}
	if report["retryable"] != false {
		t.Fatalf("empty cart must not be retryable")
	}
}

func TestHandleSales_PaymentMismatch(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")
	csrf := csrfToken(t, handler)

	rec := postSale(t, handler, token, csrf, domain.SaleRequest{
		Lines:    []domain.SaleLineRequest{{SKU: "SK-1", Quantity: 2}},
		CashPaid: 1000,
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}

	var report map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["error_code"] != "PAYMENT_MISMATCH" {
		t.Fatalf("expected PAYMENT_MISMATCH, got %v", report["error_code"])
	}
}

func TestHandleSales_InsufficientStockCarriesSKU(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")
	csrf := csrfToken(t, handler)

	// Seeded SK-6 has stock 30.
	rec := postSale(t, handler, token, csrf, domain.SaleRequest{
		Lines:    []domain.SaleLineRequest{{SKU: "SK-6", Quantity: 31}},
		CashPaid: 1,
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}

	var report map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report["error_code"] != "INSUFFICIENT_STOCK" || report["offending_sku"] != "SK-6" {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestHandleSaleActions_GetAndDelete(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashierToken := login(t, handler, "cajera", "cajera123")
	adminToken := login(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	created := postSale(t, handler, cashierToken, csrf, domain.SaleRequest{
		Lines:    []domain.SaleLineRequest{{SKU: "SK-1", Quantity: 1}},
		CashPaid: 595,
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("seed sale failed: %d (%s)", created.Code, created.Body.String())
	}
	var resp domain.SaleResponse
	if err := json.NewDecoder(created.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/1", nil)
	req.Header.Set("Authorization", "Bearer "+cashierToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on lookup, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Cashier deletion is refused; admin deletion succeeds.
	del := httptest.NewRequest(http.MethodDelete, "/api/v1/sales/1", nil)
	del.Header.Set("Authorization", "Bearer "+cashierToken)
	del.Header.Set("X-CSRF-Token", csrf)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, del)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier delete, got %d", rec.Code)
	}

	del = httptest.NewRequest(http.MethodDelete, "/api/v1/sales/1", nil)
	del.Header.Set("Authorization", "Bearer "+adminToken)
	del.Header.Set("X-CSRF-Token", csrf)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin delete, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Second delete finds nothing.
	del = httptest.NewRequest(http.MethodDelete, "/api/v1/sales/1", nil)
	del.Header.Set("Authorization", "Bearer "+adminToken)
	del.Header.Set("X-CSRF-Token", csrf)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, del)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestHandleProducts_List(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestHandleSalePreview(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cajera", "cajera123")
	csrf := csrfToken(t, handler)

	payload, _ := json.Marshal(domain.SaleRequest{
		Lines: []domain.SaleLineRequest{{SKU: "SK-1", Quantity: 2}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/preview", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var totals map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals["subtotal"] != 1000 || totals["tax"] != 190 || totals["total"] != 1190 {
		t.Fatalf("unexpected totals %v", totals)
	}
}
