package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/afyalink/clinic-service/internal/app"
	"github.com/afyalink/clinic-service/internal/domain"
	"github.com/afyalink/clinic-service/internal/store"
	"github.com/afyalink/clinic-service/pkg/darajaclient"
)

const testJWTSecret = "test-secret"

type handlerRepoStub struct {
	store.Repository

	existingTx *domain.TransactionRecord
	order      *domain.Order
	list       *store.TransactionList
}

func (s *handlerRepoStub) FindTransactionByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	if s.existingTx != nil && s.existingTx.Reference == reference {
		return s.existingTx, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (s *handlerRepoStub) AppendTransaction(ctx context.Context, tx *domain.TransactionRecord) error {
	return nil
}

func (s *handlerRepoStub) FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	if s.order == nil {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *handlerRepoStub) MarkOrderPaid(ctx context.Context, reference string) error {
	return nil
}

func (s *handlerRepoStub) ListTransactions(ctx context.Context) (*store.TransactionList, error) {
	if s.list == nil {
		return &store.TransactionList{}, nil
	}
	return s.list, nil
}

type handlerGatewayStub struct {
	err error
}

func (g *handlerGatewayStub) STKPush(ctx context.Context, phoneNumber string, amount int64, accountReference, description string) (*darajaclient.STKPushResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &darajaclient.STKPushResponse{CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}, nil
}

type handlerLimiterStub struct {
	count      int
	retryAfter int
}

func (l *handlerLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, nil
}

func newTestRouter(repo *handlerRepoStub, limiter app.RateLimiter) http.Handler {
	svc := app.NewService(repo, &handlerGatewayStub{}, nil, nil)
	if limiter != nil {
		svc.SetRateLimiter(limiter, 5)
	}
	return ClinicRoutes(NewClinicHandlers(svc), testJWTSecret)
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func callbackBody(t *testing.T, reference string, resultCode int) *bytes.Buffer {
	t.Helper()
	env := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "ws_CO_1",
				"AccountReference":  reference,
				"ResultCode":        resultCode,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]interface{}{
					"Item": []map[string]interface{}{
						{"Name": "Amount", "Value": 1500},
						{"Name": "MpesaReceiptNumber", "Value": "RKT12XYZ9A"},
						{"Name": "PhoneNumber", "Value": 254712345678},
					},
				},
			},
		},
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(env); err != nil {
		t.Fatalf("failed to encode callback body: %v", err)
	}
	return buf
}

func TestSTKCallbackHandler_Success(t *testing.T) {
	repo := &handlerRepoStub{
		order: &domain.Order{Reference: "INV-001", CustomerEmail: "payer@x.com", Status: domain.OrderStatusPending},
	}
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", callbackBody(t, "INV-001", 0))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["reference"] != "INV-001" {
		t.Fatalf("expected reference in response, got %v", body)
	}
}

func TestSTKCallbackHandler_DuplicateReturnsConflict(t *testing.T) {
	repo := &handlerRepoStub{
		existingTx: &domain.TransactionRecord{Reference: "INV-001"},
	}
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", callbackBody(t, "INV-001", 0))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSTKCallbackHandler_MissingOrderReturnsNotFound(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", callbackBody(t, "INV-404", 0))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSTKCallbackHandler_MalformedBodyReturnsBadRequest(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSTKPushHandler_RequiresAuth(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	body := strings.NewReader(`{"phone_number":"254712345678","amount":150000,"account_reference":"INV-001"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/stkpush", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}
}

func TestSTKPushHandler_Success(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	body := strings.NewReader(`{"phone_number":"254712345678","amount":150000,"account_reference":"INV-001"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/stkpush", body)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "staff@clinic.com"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp darajaclient.STKPushResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CheckoutRequestID != "ws_CO_1" {
		t.Fatalf("expected gateway response to pass through, got %+v", resp)
	}
}

func TestSTKPushHandler_RateLimitedReturnsRetryAfter(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, &handlerLimiterStub{count: 6, retryAfter: 42})

	body := strings.NewReader(`{"phone_number":"254712345678","amount":150000,"account_reference":"INV-001"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/stkpush", body)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "staff@clinic.com"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After header of 42, got %q", got)
	}
}

func TestGetTransactionHandler_NotFound(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/transactions/INV-999", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "staff@clinic.com"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListTransactionsHandler_ReturnsCounts(t *testing.T) {
	repo := &handlerRepoStub{
		list: &store.TransactionList{
			Transactions: []domain.TransactionRecord{{Reference: "INV-001"}},
			RowCount:     1,
			ColumnCount:  9,
		},
	}
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/payments/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "staff@clinic.com"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var list store.TransactionList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.RowCount != 1 || list.ColumnCount != 9 {
		t.Fatalf("expected sheet counts to pass through, got %+v", list)
	}
}

func TestAuthMiddleware_RejectsWrongSecret(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "staff@clinic.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/payments/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a forged token, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
