/**
 * @description
 * This file implements the `Repository` interface on top of the spreadsheet row
 * service. Each logical table is one sheet tab; rows travel as column-keyed
 * string maps, so this layer owns the mapping between cell text and domain
 * types.
 *
 * @notes
 * - Reference lookups are linear scans over the full sheet. That mirrors how
 *   the spreadsheet service works and is acceptable at clinic scale; there is
 *   no index to use.
 * - A scan followed by an append is not atomic. Concurrent callbacks for the
 *   same reference can race; the service layer treats that as an accepted
 *   integration risk of the spreadsheet store.
 *
 * @dependencies
 * - context, strconv, time: Standard Go libraries.
 * - github.com/google/uuid: Row IDs for clinic records.
 * - pkg/sheetsclient: HTTP client for the spreadsheet service.
 */

package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afyalink/clinic-service/internal/domain"
	"github.com/afyalink/clinic-service/pkg/sheetsclient"
)

// SheetsAPI is the subset of the spreadsheet client used by the repository.
type SheetsAPI interface {
	Rows(ctx context.Context, sheet string) (*sheetsclient.RowsResponse, error)
	Append(ctx context.Context, sheet string, row sheetsclient.Row) (*sheetsclient.AppendResponse, error)
	Update(ctx context.Context, sheet, column, value string, patch sheetsclient.Row) (*sheetsclient.UpdateResponse, error)
}

// SheetNames holds the tab names for each logical table.
type SheetNames struct {
	Ledger       string
	Orders       string
	Patients     string
	Appointments string
}

// SheetRepository implements Repository against the spreadsheet row service.
type SheetRepository struct {
	api    SheetsAPI
	sheets SheetNames
}

// NewSheetRepository creates a new spreadsheet-backed repository.
func NewSheetRepository(api SheetsAPI, sheets SheetNames) *SheetRepository {
	return &SheetRepository{api: api, sheets: sheets}
}

// Ledger column headers.
const (
	colReference         = "Reference"
	colMpesaReceipt      = "MpesaReceiptNumber"
	colMerchantRequestID = "MerchantRequestID"
	colCheckoutRequestID = "CheckoutRequestID"
	colAmount            = "Amount"
	colPhoneNumber       = "PhoneNumber"
	colResultCode        = "ResultCode"
	colResultDesc        = "ResultDesc"
	colStatus            = "Status"
	colCreatedAt         = "CreatedAt"
)

// FindTransactionByReference scans the ledger sheet for the given reference.
func (r *SheetRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	resp, err := r.api.Rows(ctx, r.sheets.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger sheet: %w", err)
	}
	for _, row := range resp.Rows {
		if strings.TrimSpace(row[colReference]) == reference {
			tx := transactionFromRow(row)
			return &tx, nil
		}
	}
	return nil, ErrTransactionNotFound
}

// AppendTransaction adds one row to the end of the ledger sheet.
func (r *SheetRepository) AppendTransaction(ctx context.Context, tx *domain.TransactionRecord) error {
	if _, err := r.api.Append(ctx, r.sheets.Ledger, transactionToRow(tx)); err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	return nil
}

// ListTransactions returns every ledger row plus the sheet's row/column counts.
func (r *SheetRepository) ListTransactions(ctx context.Context) (*TransactionList, error) {
	resp, err := r.api.Rows(ctx, r.sheets.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger sheet: %w", err)
	}
	list := &TransactionList{
		Transactions: make([]domain.TransactionRecord, 0, len(resp.Rows)),
		RowCount:     resp.RowCount,
		ColumnCount:  resp.ColumnCount,
	}
	for _, row := range resp.Rows {
		list.Transactions = append(list.Transactions, transactionFromRow(row))
	}
	return list, nil
}

// FindOrderByReference scans the orders sheet for the given reference.
func (r *SheetRepository) FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	resp, err := r.api.Rows(ctx, r.sheets.Orders)
	if err != nil {
		return nil, fmt.Errorf("failed to read orders sheet: %w", err)
	}
	for _, row := range resp.Rows {
		if strings.TrimSpace(row[colReference]) == reference {
			return &domain.Order{
				Reference:     row[colReference],
				CustomerName:  row["CustomerName"],
				CustomerEmail: row["CustomerEmail"],
				Amount:        parseCents(row[colAmount]),
				Status:        row[colStatus],
			}, nil
		}
	}
	return nil, ErrOrderNotFound
}

// MarkOrderPaid flips the matching order's status cell to Paid.
func (r *SheetRepository) MarkOrderPaid(ctx context.Context, reference string) error {
	resp, err := r.api.Update(ctx, r.sheets.Orders, colReference, reference, sheetsclient.Row{
		colStatus: domain.OrderStatusPaid,
	})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if resp.Updated == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListPatients returns every patient row.
func (r *SheetRepository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	resp, err := r.api.Rows(ctx, r.sheets.Patients)
	if err != nil {
		return nil, fmt.Errorf("failed to read patients sheet: %w", err)
	}
	patients := make([]domain.Patient, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		patients = append(patients, domain.Patient{
			ID:          row["ID"],
			FirstName:   row["FirstName"],
			LastName:    row["LastName"],
			Email:       row["Email"],
			PhoneNumber: row[colPhoneNumber],
			Gender:      row["Gender"],
			DateOfBirth: row["DateOfBirth"],
			Address:     row["Address"],
			BloodGroup:  row["BloodGroup"],
		})
	}
	return patients, nil
}

// CreatePatient appends a patient row, assigning a fresh row ID.
func (r *SheetRepository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	row := sheetsclient.Row{
		"ID":           patient.ID,
		"FirstName":    patient.FirstName,
		"LastName":     patient.LastName,
		"Email":        patient.Email,
		colPhoneNumber: patient.PhoneNumber,
		"Gender":       patient.Gender,
		"DateOfBirth":  patient.DateOfBirth,
		"Address":      patient.Address,
		"BloodGroup":   patient.BloodGroup,
	}
	if _, err := r.api.Append(ctx, r.sheets.Patients, row); err != nil {
		return fmt.Errorf("failed to append patient row: %w", err)
	}
	return nil
}

// ListAppointments returns every appointment row.
func (r *SheetRepository) ListAppointments(ctx context.Context) ([]domain.Appointment, error) {
	resp, err := r.api.Rows(ctx, r.sheets.Appointments)
	if err != nil {
		return nil, fmt.Errorf("failed to read appointments sheet: %w", err)
	}
	appointments := make([]domain.Appointment, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		appointments = append(appointments, domain.Appointment{
			ID:          row["ID"],
			PatientName: row["PatientName"],
			DoctorName:  row["DoctorName"],
			Email:       row["Email"],
			Date:        row["Date"],
			Time:        row["Time"],
			Reason:      row["Reason"],
			Status:      row[colStatus],
		})
	}
	return appointments, nil
}

// CreateAppointment appends an appointment row, assigning a fresh row ID and a
// Scheduled status.
func (r *SheetRepository) CreateAppointment(ctx context.Context, appointment *domain.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	if appointment.Status == "" {
		appointment.Status = "Scheduled"
	}
	row := sheetsclient.Row{
		"ID":          appointment.ID,
		"PatientName": appointment.PatientName,
		"DoctorName":  appointment.DoctorName,
		"Email":       appointment.Email,
		"Date":        appointment.Date,
		"Time":        appointment.Time,
		"Reason":      appointment.Reason,
		colStatus:     appointment.Status,
	}
	if _, err := r.api.Append(ctx, r.sheets.Appointments, row); err != nil {
		return fmt.Errorf("failed to append appointment row: %w", err)
	}
	return nil
}

func transactionFromRow(row sheetsclient.Row) domain.TransactionRecord {
	resultCode, _ := strconv.Atoi(strings.TrimSpace(row[colResultCode]))
	createdAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(row[colCreatedAt]))
	return domain.TransactionRecord{
		Reference:          row[colReference],
		MpesaReceiptNumber: row[colMpesaReceipt],
		MerchantRequestID:  row[colMerchantRequestID],
		CheckoutRequestID:  row[colCheckoutRequestID],
		Amount:             parseCents(row[colAmount]),
		PhoneNumber:        row[colPhoneNumber],
		ResultCode:         resultCode,
		ResultDesc:         row[colResultDesc],
		Status:             row[colStatus],
		CreatedAt:          createdAt,
	}
}

func transactionToRow(tx *domain.TransactionRecord) sheetsclient.Row {
	return sheetsclient.Row{
		colReference:         tx.Reference,
		colMpesaReceipt:      tx.MpesaReceiptNumber,
		colMerchantRequestID: tx.MerchantRequestID,
		colCheckoutRequestID: tx.CheckoutRequestID,
		colAmount:            strconv.FormatInt(tx.Amount, 10),
		colPhoneNumber:       tx.PhoneNumber,
		colResultCode:        strconv.Itoa(tx.ResultCode),
		colResultDesc:        tx.ResultDesc,
		colStatus:            tx.Status,
		colCreatedAt:         tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseCents(raw string) int64 {
	value, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return value
}
