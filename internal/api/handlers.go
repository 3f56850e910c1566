/**
 * @description
 * This file contains the HTTP handlers for the clinic-service's payment
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @notes
 * - Status codes are normalized: a duplicate callback is 409 Conflict, a
 *   missing order is 404, a malformed payload is 400, and an upstream
 *   spreadsheet/provider failure is 502.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/afyalink/clinic-service/internal/app"
	"github.com/afyalink/clinic-service/internal/domain"
	"github.com/afyalink/clinic-service/internal/store"
)

// ClinicHandlers holds the application service that handlers will use.
type ClinicHandlers struct {
	service *app.Service
}

// NewClinicHandlers creates a new instance of ClinicHandlers.
func NewClinicHandlers(service *app.Service) *ClinicHandlers {
	return &ClinicHandlers{service: service}
}

// STKCallbackHandler is invoked asynchronously by the payment provider with
// the result of an STK push. It records the result in the ledger and marks the
// matching order paid.
func (h *ClinicHandlers) STKCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var env domain.STKCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		log.Printf("level=warn component=api endpoint=stk_callback outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid callback body: %v", err))
		return
	}

	record, err := h.service.RecordSTKCallback(r.Context(), env)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateReference):
			h.writeError(w, http.StatusConflict, "Transaction already recorded")
		case errors.Is(err, app.ErrInvalidRequest):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrOrderNotFound):
			// The ledger row was written; only the order update is missing.
			h.writeError(w, http.StatusNotFound, "No matching order for reference")
		default:
			log.Printf("level=error component=api endpoint=stk_callback outcome=failed err=%v", err)
			h.writeError(w, http.StatusBadGateway, "Could not record transaction")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Transaction recorded",
		"reference": record.Reference,
	})
}

// STKPushHandler initiates a payment prompt on the customer's phone.
func (h *ClinicHandlers) STKPushHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.STKPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	resp, err := h.service.InitiateSTKPush(r.Context(), req)
	if err != nil {
		var rateLimited *app.RateLimitError
		switch {
		case errors.As(err, &rateLimited):
			w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
			h.writeError(w, http.StatusTooManyRequests, "Too many payment prompts for this phone. Please wait and try again.")
		case errors.Is(err, app.ErrInvalidRequest):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=stk_push outcome=failed err=%v", err)
			h.writeError(w, http.StatusBadGateway, "Could not initiate payment prompt")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListTransactionsHandler returns every ledger row plus row/column counts.
func (h *ClinicHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListTransactions(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not retrieve transactions")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetTransactionHandler returns one ledger row by external reference.
func (h *ClinicHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	record, err := h.service.GetTransactionByReference(r.Context(), reference)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTransactionNotFound):
			h.writeError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, app.ErrInvalidRequest):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=get_transaction outcome=failed reference=%s err=%v", reference, err)
			h.writeError(w, http.StatusBadGateway, "Could not retrieve transaction")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// writeJSON is a helper for writing JSON responses.
func (h *ClinicHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *ClinicHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
