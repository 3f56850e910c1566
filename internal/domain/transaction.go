/**
 * @description
 * This file defines the core payment domain models for the clinic-service.
 * These structs represent the M-Pesa transaction ledger rows, pharmacy orders,
 * and the DTOs exchanged with the Daraja payment gateway.
 *
 * @notes
 * - Using distinct types for API requests, ledger rows, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 *   Daraja reports amounts as JSON numbers in whole shillings; conversion happens
 *   at the callback parsing boundary.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Transaction statuses recorded in the ledger.
const (
	TransactionStatusCompleted = "Completed"
	TransactionStatusFailed    = "Failed"
)

// Order statuses tracked in the orders sheet.
const (
	OrderStatusPending = "Pending"
	OrderStatusPaid    = "Paid"
)

// TransactionRecord represents one row of the payment ledger. The ledger is
// append-only; the external reference is the uniqueness key.
type TransactionRecord struct {
	Reference          string    `json:"reference"`
	MpesaReceiptNumber string    `json:"mpesa_receipt_number"`
	MerchantRequestID  string    `json:"merchant_request_id"`
	CheckoutRequestID  string    `json:"checkout_request_id"`
	Amount             int64     `json:"amount"` // in cents
	PhoneNumber        string    `json:"phone_number"`
	ResultCode         int       `json:"result_code"`
	ResultDesc         string    `json:"result_desc"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// Order represents a pharmacy order awaiting payment. Orders live in their own
// sheet; the payment callback correlates them to ledger rows by reference.
type Order struct {
	Reference     string `json:"reference"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Amount        int64  `json:"amount"` // in cents
	Status        string `json:"status"`
}

// STKPushRequest is the DTO for initiating a payment prompt from the dashboard.
type STKPushRequest struct {
	PhoneNumber      string `json:"phone_number"`
	Amount           int64  `json:"amount"` // in cents
	AccountReference string `json:"account_reference"`
	Description      string `json:"description"`
}

// STKCallbackEnvelope mirrors the nested shape Daraja posts to the callback URL.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the payment result posted by the provider. AccountReference is
// the external reference supplied at push time and echoed back by the gateway.
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	AccountReference  string `json:"AccountReference"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []CallbackMetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// CallbackMetadataItem is one positional name/value pair from the callback
// metadata array. Values arrive as strings or JSON numbers depending on field.
type CallbackMetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// Callback metadata item names emitted by Daraja on successful payments.
const (
	metadataItemAmount      = "Amount"
	metadataItemReceipt     = "MpesaReceiptNumber"
	metadataItemPhoneNumber = "PhoneNumber"
)

// ErrMetadataItemMissing indicates a successful callback arrived without one of
// the metadata fields the ledger row requires.
var ErrMetadataItemMissing = errors.New("callback metadata item missing")

// MetadataAmount extracts the paid amount from the callback metadata and
// converts it to cents.
func (c *STKCallback) MetadataAmount() (int64, error) {
	raw, ok := c.metadataValue(metadataItemAmount)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMetadataItemMissing, metadataItemAmount)
	}
	switch v := raw.(type) {
	case float64:
		return int64(math.Round(v * 100)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid callback amount %q: %w", v.String(), err)
		}
		return int64(math.Round(f * 100)), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid callback amount %q: %w", v, err)
		}
		return int64(math.Round(f * 100)), nil
	default:
		return 0, fmt.Errorf("unexpected callback amount type %T", raw)
	}
}

// MetadataReceipt extracts the M-Pesa receipt number from the callback metadata.
func (c *STKCallback) MetadataReceipt() (string, error) {
	return c.metadataString(metadataItemReceipt)
}

// MetadataPhoneNumber extracts the paying phone number from the callback metadata.
func (c *STKCallback) MetadataPhoneNumber() (string, error) {
	return c.metadataString(metadataItemPhoneNumber)
}

func (c *STKCallback) metadataString(name string) (string, error) {
	raw, ok := c.metadataValue(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMetadataItemMissing, name)
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		// Phone numbers arrive as JSON numbers (e.g. 254712345678).
		return strconv.FormatInt(int64(v), 10), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unexpected callback metadata type %T for %s", raw, name)
	}
}

func (c *STKCallback) metadataValue(name string) (interface{}, bool) {
	for _, item := range c.CallbackMetadata.Item {
		if strings.EqualFold(item.Name, name) {
			return item.Value, true
		}
	}
	return nil, false
}
