/**
 * @description
 * This file contains the core business logic for the clinic-service. The
 * `Service` struct orchestrates payment recording and initiation, coordinating
 * between the spreadsheet repository, the Daraja payment gateway client, the
 * message broker, and the realtime hub.
 *
 * Key features:
 * - Records STK callback results in the append-only ledger with an idempotency
 *   scan on the external reference.
 * - Performs the two-step ledger-append / order-update flow. The two writes
 *   have no transaction boundary; a failure between them leaves a ledger row
 *   without a paid order, which is surfaced to the caller and logged.
 * - Publishes payment events to RabbitMQ and pushes confirmations to the
 *   paying customer over the realtime channel, both best-effort.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/darajaclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/afyalink/clinic-service/internal/domain"
	"github.com/afyalink/clinic-service/internal/store"
	"github.com/afyalink/clinic-service/pkg/darajaclient"
	"github.com/afyalink/clinic-service/pkg/rabbitmq"
)

// PaymentEventsExchange is the topic exchange payment events are published to.
const PaymentEventsExchange = "afyalink.events"

// ErrInvalidRequest flags caller mistakes that handlers map to 400.
var ErrInvalidRequest = errors.New("invalid request")

// RateLimitError reports a denied STK push with the seconds to wait.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("stk push rate limit exceeded; retry after %ds", e.RetryAfterSeconds)
}

// PaymentGateway is the subset of the Daraja client the service depends on.
type PaymentGateway interface {
	STKPush(ctx context.Context, phoneNumber string, amount int64, accountReference, description string) (*darajaclient.STKPushResponse, error)
}

// Notifier pushes a payload to every realtime connection of one email.
// Delivery is fire-and-forget.
type Notifier interface {
	NotifyEmail(email string, payload interface{})
}

// RateLimiter enforces a fixed-window limit for a scope/subject pair.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the clinic backend.
type Service struct {
	repo          store.Repository
	gateway       PaymentGateway
	eventProducer rabbitmq.Publisher
	notifier      Notifier

	rateLimiter           RateLimiter
	stkPushLimitPerMinute int

	now func() time.Time
}

// NewService creates a new clinic service instance. The producer and notifier
// may be nil; both side effects degrade to no-ops.
func NewService(repo store.Repository, gateway PaymentGateway, producer rabbitmq.Publisher, notifier Notifier) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		notifier:      notifier,
		now:           time.Now,
	}
}

// SetRateLimiter wires a limiter for STK push initiation. A zero or negative
// limit disables limiting.
func (s *Service) SetRateLimiter(limiter RateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.stkPushLimitPerMinute = limitPerMinute
}

// paymentConfirmation is the payload pushed to the payer's realtime connections.
type paymentConfirmation struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Receipt   string `json:"receipt"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// RecordSTKCallback processes a payment result posted by the provider.
//
// The flow is: dedup scan on the external reference, ledger append, then (for
// successful payments) order status update. The returned record is non-nil
// whenever a ledger row was written, including when the error is
// store.ErrOrderNotFound — that is the documented partial-write state.
func (s *Service) RecordSTKCallback(ctx context.Context, env domain.STKCallbackEnvelope) (*domain.TransactionRecord, error) {
	cb := env.Body.STKCallback
	reference := strings.TrimSpace(cb.AccountReference)
	if reference == "" {
		return nil, fmt.Errorf("%w: missing account reference", ErrInvalidRequest)
	}

	// Idempotency scan. Not atomic with the append below; concurrent callbacks
	// for one reference can still race, an accepted limit of the sheet store.
	if _, err := s.repo.FindTransactionByReference(ctx, reference); err == nil {
		log.Printf("level=info component=app op=record_callback outcome=duplicate reference=%s", reference)
		return nil, store.ErrDuplicateReference
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate reference: %w", err)
	}

	record := &domain.TransactionRecord{
		Reference:         reference,
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Status:            domain.TransactionStatusFailed,
		CreatedAt:         s.now().UTC(),
	}

	if cb.ResultCode == 0 {
		amount, err := cb.MetadataAmount()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		receipt, err := cb.MetadataReceipt()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		phone, err := cb.MetadataPhoneNumber()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		record.Amount = amount
		record.MpesaReceiptNumber = receipt
		record.PhoneNumber = phone
		record.Status = domain.TransactionStatusCompleted
	}

	if err := s.repo.AppendTransaction(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	log.Printf("level=info component=app op=record_callback outcome=recorded reference=%s status=%s result_code=%d", reference, record.Status, record.ResultCode)

	if record.Status != domain.TransactionStatusCompleted {
		s.publishPaymentEvent(ctx, "payment.failed", record)
		return record, nil
	}

	// Second phase: mark the matching order paid. The ledger row above stays
	// written even when this fails.
	order, err := s.repo.FindOrderByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			log.Printf("level=warn component=app op=record_callback outcome=order_missing reference=%s msg=\"ledger row written without order update\"", reference)
			return record, store.ErrOrderNotFound
		}
		return record, fmt.Errorf("failed to find order: %w", err)
	}
	if err := s.repo.MarkOrderPaid(ctx, reference); err != nil {
		log.Printf("level=error component=app op=record_callback outcome=order_update_failed reference=%s err=%v", reference, err)
		return record, fmt.Errorf("failed to mark order paid: %w", err)
	}

	s.publishPaymentEvent(ctx, "payment.confirmed", record)
	if s.notifier != nil && order.CustomerEmail != "" {
		s.notifier.NotifyEmail(order.CustomerEmail, paymentConfirmation{
			Type:      "payment_confirmed",
			Reference: record.Reference,
			Receipt:   record.MpesaReceiptNumber,
			Amount:    record.Amount,
			Status:    record.Status,
		})
	}

	return record, nil
}

// InitiateSTKPush validates and rate-limits a push request, then forwards it
// to the payment gateway.
func (s *Service) InitiateSTKPush(ctx context.Context, req domain.STKPushRequest) (*darajaclient.STKPushResponse, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	reference := strings.TrimSpace(req.AccountReference)
	if reference == "" {
		return nil, fmt.Errorf("%w: account reference is required", ErrInvalidRequest)
	}

	if s.rateLimiter != nil && s.stkPushLimitPerMinute > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "stkpush", phone, s.stkPushLimitPerMinute, time.Minute)
		if err != nil {
			// Limiter trouble must not block payments; log and continue.
			log.Printf("level=warn component=app op=stk_push msg=\"rate limiter unavailable\" err=%v", err)
		} else if count > s.stkPushLimitPerMinute {
			log.Printf("level=warn component=app op=stk_push outcome=rate_limited phone=%s count=%d", phone, count)
			return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	resp, err := s.gateway.STKPush(ctx, phone, req.Amount, reference, req.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate stk push: %w", err)
	}
	log.Printf("level=info component=app op=stk_push outcome=initiated reference=%s checkout_request_id=%s", reference, resp.CheckoutRequestID)
	return resp, nil
}

// ListTransactions returns the ledger rows plus row/column counts.
func (s *Service) ListTransactions(ctx context.Context) (*store.TransactionList, error) {
	return s.repo.ListTransactions(ctx)
}

// GetTransactionByReference returns one ledger row or store.ErrTransactionNotFound.
func (s *Service) GetTransactionByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	return s.repo.FindTransactionByReference(ctx, reference)
}

// ListPatients returns every registered patient.
func (s *Service) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	return s.repo.ListPatients(ctx)
}

// CreatePatient registers a patient from the dashboard.
func (s *Service) CreatePatient(ctx context.Context, req domain.CreatePatientRequest) (*domain.Patient, error) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidRequest)
	}
	patient := &domain.Patient{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Gender:      req.Gender,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		BloodGroup:  req.BloodGroup,
	}
	if err := s.repo.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return patient, nil
}

// ListAppointments returns every scheduled appointment.
func (s *Service) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	return s.repo.ListAppointments(ctx)
}

// CreateAppointment books an appointment from the dashboard.
func (s *Service) CreateAppointment(ctx context.Context, req domain.CreateAppointmentRequest) (*domain.Appointment, error) {
	if strings.TrimSpace(req.PatientName) == "" || strings.TrimSpace(req.Date) == "" {
		return nil, fmt.Errorf("%w: patient name and date are required", ErrInvalidRequest)
	}
	appointment := &domain.Appointment{
		PatientName: strings.TrimSpace(req.PatientName),
		DoctorName:  strings.TrimSpace(req.DoctorName),
		Email:       strings.TrimSpace(req.Email),
		Date:        req.Date,
		Time:        req.Time,
		Reason:      req.Reason,
	}
	if err := s.repo.CreateAppointment(ctx, appointment); err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return appointment, nil
}

// publishPaymentEvent emits a payment event to the broker. Failures are logged
// and swallowed; the ledger is the source of truth.
func (s *Service) publishPaymentEvent(ctx context.Context, routingKey string, record *domain.TransactionRecord) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.PaymentEvent{
		Reference:          record.Reference,
		MpesaReceiptNumber: record.MpesaReceiptNumber,
		Amount:             record.Amount,
		Status:             record.Status,
		Timestamp:          s.now().UTC(),
	}
	if err := s.eventProducer.PublishPaymentEvent(ctx, PaymentEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app op=publish_event routing_key=%s reference=%s err=%v", routingKey, record.Reference, err)
	}
}
