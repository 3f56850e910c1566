package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/afyalink/clinic-service/internal/app"
	"github.com/afyalink/clinic-service/internal/domain"
)

// ListPatientsHandler returns every registered patient.
func (h *ClinicHandlers) ListPatientsHandler(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.ListPatients(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_patients outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not retrieve patients")
		return
	}
	h.writeJSON(w, http.StatusOK, patients)
}

// CreatePatientHandler registers a patient from the dashboard.
func (h *ClinicHandlers) CreatePatientHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	patient, err := h.service.CreatePatient(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=create_patient outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not create patient")
		return
	}

	h.writeJSON(w, http.StatusCreated, patient)
}

// ListAppointmentsHandler returns every scheduled appointment.
func (h *ClinicHandlers) ListAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.service.ListAppointments(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_appointments outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not retrieve appointments")
		return
	}
	h.writeJSON(w, http.StatusOK, appointments)
}

// CreateAppointmentHandler books an appointment from the dashboard.
func (h *ClinicHandlers) CreateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	appointment, err := h.service.CreateAppointment(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=create_appointment outcome=failed err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Could not create appointment")
		return
	}

	h.writeJSON(w, http.StatusCreated, appointment)
}
