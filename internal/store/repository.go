/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the clinic-service. The backing store
 * is a spreadsheet reached over HTTP, not a database; defining an interface
 * decouples the business logic from that implementation detail and keeps the
 * service testable with in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/afyalink/clinic-service/internal/domain"
)

// Sentinel errors surfaced to handlers for status-code mapping.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrDuplicateReference  = errors.New("transaction reference already recorded")
)

// TransactionList carries ledger rows along with the sheet's row/column counts,
// which the dashboard displays alongside the table.
type TransactionList struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
	RowCount     int                        `json:"row_count"`
	ColumnCount  int                        `json:"column_count"`
}

// Repository defines the set of methods for interacting with the spreadsheet store.
type Repository interface {
	// Ledger methods. The reference scan is a linear read of the whole sheet;
	// there is no transactional guarantee between a scan and a later append.
	FindTransactionByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error)
	AppendTransaction(ctx context.Context, tx *domain.TransactionRecord) error
	ListTransactions(ctx context.Context) (*TransactionList, error)

	// Order methods
	FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, reference string) error

	// Clinic methods
	ListPatients(ctx context.Context) ([]domain.Patient, error)
	CreatePatient(ctx context.Context, patient *domain.Patient) error
	ListAppointments(ctx context.Context) ([]domain.Appointment, error)
	CreateAppointment(ctx context.Context, appointment *domain.Appointment) error
}
