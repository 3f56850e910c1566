/**
 * @description
 * This file sets up the HTTP router for the clinic-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ClinicRoutes creates and returns the router for the clinic service.
// The websocket endpoint is mounted separately in main; it must not sit behind
// the request timeout middleware.
func ClinicRoutes(h *ClinicHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// The payment provider posts callbacks here; it cannot carry our tokens.
	r.Post("/payments/callback", h.STKCallbackHandler)

	// Group routes that require dashboard authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/payments/stkpush", h.STKPushHandler)
		r.Get("/payments/transactions", h.ListTransactionsHandler)
		r.Get("/payments/transactions/{reference}", h.GetTransactionHandler)

		r.Get("/patients", h.ListPatientsHandler)
		r.Post("/patients", h.CreatePatientHandler)
		r.Get("/appointments", h.ListAppointmentsHandler)
		r.Post("/appointments", h.CreateAppointmentHandler)
	})

	return r
}
