package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afyalink/clinic-service/internal/domain"
	"github.com/afyalink/clinic-service/internal/store"
	"github.com/afyalink/clinic-service/pkg/darajaclient"
	"github.com/afyalink/clinic-service/pkg/rabbitmq"
)

type serviceRepoStub struct {
	store.Repository

	existingTx *domain.TransactionRecord
	order      *domain.Order

	appended       *domain.TransactionRecord
	orderLookups   int
	markPaidCalled bool
	markPaidErr    error
}

func (s *serviceRepoStub) FindTransactionByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	if s.existingTx != nil && s.existingTx.Reference == reference {
		return s.existingTx, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (s *serviceRepoStub) AppendTransaction(ctx context.Context, tx *domain.TransactionRecord) error {
	s.appended = tx
	return nil
}

func (s *serviceRepoStub) FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	s.orderLookups++
	if s.order == nil {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *serviceRepoStub) MarkOrderPaid(ctx context.Context, reference string) error {
	s.markPaidCalled = true
	return s.markPaidErr
}

type gatewayStub struct {
	called   bool
	response *darajaclient.STKPushResponse
	err      error
}

func (g *gatewayStub) STKPush(ctx context.Context, phoneNumber string, amount int64, accountReference, description string) (*darajaclient.STKPushResponse, error) {
	g.called = true
	if g.err != nil {
		return nil, g.err
	}
	if g.response != nil {
		return g.response, nil
	}
	return &darajaclient.STKPushResponse{CheckoutRequestID: "ws_CO_1"}, nil
}

type notifierStub struct {
	email   string
	payload interface{}
}

func (n *notifierStub) NotifyEmail(email string, payload interface{}) {
	n.email = email
	n.payload = payload
}

type publisherStub struct {
	routingKey string
	event      rabbitmq.PaymentEvent
}

func (p *publisherStub) PublishPaymentEvent(ctx context.Context, exchange, routingKey string, event rabbitmq.PaymentEvent) error {
	p.routingKey = routingKey
	p.event = event
	return nil
}

func (p *publisherStub) Close() {}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func successCallback(reference string) domain.STKCallbackEnvelope {
	var env domain.STKCallbackEnvelope
	env.Body.STKCallback = domain.STKCallback{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: "ws_CO_1",
		AccountReference:  reference,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	}
	env.Body.STKCallback.CallbackMetadata.Item = []domain.CallbackMetadataItem{
		{Name: "Amount", Value: float64(1500)},
		{Name: "MpesaReceiptNumber", Value: "RKT12XYZ9A"},
		{Name: "PhoneNumber", Value: float64(254712345678)},
	}
	return env
}

func TestRecordSTKCallback_SuccessRecordsAndMarksOrderPaid(t *testing.T) {
	repo := &serviceRepoStub{
		order: &domain.Order{
			Reference:     "INV-001",
			CustomerEmail: "payer@x.com",
			Status:        domain.OrderStatusPending,
		},
	}
	notifier := &notifierStub{}
	publisher := &publisherStub{}
	svc := NewService(repo, &gatewayStub{}, publisher, notifier)

	record, err := svc.RecordSTKCallback(context.Background(), successCallback("INV-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.appended == nil {
		t.Fatal("expected a ledger row to be appended")
	}
	if repo.appended.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected Completed status, got %q", repo.appended.Status)
	}
	if repo.appended.Amount != 150000 {
		t.Fatalf("expected 150000 cents, got %d", repo.appended.Amount)
	}
	if repo.appended.MpesaReceiptNumber != "RKT12XYZ9A" {
		t.Fatalf("expected receipt number, got %q", repo.appended.MpesaReceiptNumber)
	}
	if repo.appended.PhoneNumber != "254712345678" {
		t.Fatalf("expected phone number, got %q", repo.appended.PhoneNumber)
	}
	if !repo.markPaidCalled {
		t.Fatal("expected order to be marked paid")
	}
	if notifier.email != "payer@x.com" {
		t.Fatalf("expected realtime notification to payer, got %q", notifier.email)
	}
	if publisher.routingKey != "payment.confirmed" {
		t.Fatalf("expected payment.confirmed event, got %q", publisher.routingKey)
	}
	if record.Reference != "INV-001" {
		t.Fatalf("expected returned record for INV-001, got %q", record.Reference)
	}
}

func TestRecordSTKCallback_DuplicateReferenceIsRejected(t *testing.T) {
	repo := &serviceRepoStub{
		existingTx: &domain.TransactionRecord{Reference: "INV-001"},
	}
	svc := NewService(repo, &gatewayStub{}, nil, nil)

	_, err := svc.RecordSTKCallback(context.Background(), successCallback("INV-001"))
	if !errors.Is(err, store.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if repo.appended != nil {
		t.Fatal("expected no second ledger row for a duplicate reference")
	}
}

func TestRecordSTKCallback_MissingOrderPreservesLedgerRow(t *testing.T) {
	repo := &serviceRepoStub{} // no order configured
	svc := NewService(repo, &gatewayStub{}, nil, nil)

	record, err := svc.RecordSTKCallback(context.Background(), successCallback("INV-404"))
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if repo.appended == nil {
		t.Fatal("expected the ledger row to be written despite the missing order")
	}
	if record == nil || record.Reference != "INV-404" {
		t.Fatal("expected the written record to be returned for the partial-write state")
	}
	if repo.markPaidCalled {
		t.Fatal("did not expect an order update for a missing order")
	}
}

func TestRecordSTKCallback_FailedResultRecordsFailureWithoutOrderUpdate(t *testing.T) {
	repo := &serviceRepoStub{
		order: &domain.Order{Reference: "INV-002", CustomerEmail: "payer@x.com"},
	}
	notifier := &notifierStub{}
	publisher := &publisherStub{}
	svc := NewService(repo, &gatewayStub{}, publisher, notifier)

	var env domain.STKCallbackEnvelope
	env.Body.STKCallback = domain.STKCallback{
		AccountReference: "INV-002",
		ResultCode:       1032,
		ResultDesc:       "Request cancelled by user",
	}

	record, err := svc.RecordSTKCallback(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.TransactionStatusFailed {
		t.Fatalf("expected Failed status, got %q", record.Status)
	}
	if repo.orderLookups != 0 || repo.markPaidCalled {
		t.Fatal("did not expect order handling for a failed payment")
	}
	if notifier.email != "" {
		t.Fatal("did not expect a realtime notification for a failed payment")
	}
	if publisher.routingKey != "payment.failed" {
		t.Fatalf("expected payment.failed event, got %q", publisher.routingKey)
	}
}

func TestRecordSTKCallback_MissingReferenceIsInvalid(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, &gatewayStub{}, nil, nil)

	var env domain.STKCallbackEnvelope
	env.Body.STKCallback = domain.STKCallback{ResultCode: 0}

	_, err := svc.RecordSTKCallback(context.Background(), env)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRecordSTKCallback_MissingMetadataIsInvalid(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, &gatewayStub{}, nil, nil)

	var env domain.STKCallbackEnvelope
	env.Body.STKCallback = domain.STKCallback{
		AccountReference: "INV-003",
		ResultCode:       0, // success but no metadata items
	}

	_, err := svc.RecordSTKCallback(context.Background(), env)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestInitiateSTKPush_RateLimitDenial(t *testing.T) {
	gateway := &gatewayStub{}
	svc := NewService(&serviceRepoStub{}, gateway, nil, nil)
	svc.SetRateLimiter(&limiterStub{count: 6, retryAfter: 42}, 5)

	_, err := svc.InitiateSTKPush(context.Background(), domain.STKPushRequest{
		PhoneNumber:      "254712345678",
		Amount:           150000,
		AccountReference: "INV-001",
	})

	var rateLimited *RateLimitError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateLimited.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry after 42s, got %d", rateLimited.RetryAfterSeconds)
	}
	if gateway.called {
		t.Fatal("did not expect a gateway call when rate limited")
	}
}

func TestInitiateSTKPush_LimiterFailureDoesNotBlockPayment(t *testing.T) {
	gateway := &gatewayStub{}
	svc := NewService(&serviceRepoStub{}, gateway, nil, nil)
	svc.SetRateLimiter(&limiterStub{err: errors.New("redis down")}, 5)

	if _, err := svc.InitiateSTKPush(context.Background(), domain.STKPushRequest{
		PhoneNumber:      "254712345678",
		Amount:           150000,
		AccountReference: "INV-001",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gateway.called {
		t.Fatal("expected the gateway to be called despite limiter failure")
	}
}

func TestInitiateSTKPush_Validation(t *testing.T) {
	svc := NewService(&serviceRepoStub{}, &gatewayStub{}, nil, nil)

	tests := []struct {
		name string
		req  domain.STKPushRequest
	}{
		{name: "missing phone", req: domain.STKPushRequest{Amount: 100, AccountReference: "INV-1"}},
		{name: "zero amount", req: domain.STKPushRequest{PhoneNumber: "254712345678", AccountReference: "INV-1"}},
		{name: "missing reference", req: domain.STKPushRequest{PhoneNumber: "254712345678", Amount: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.InitiateSTKPush(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}
