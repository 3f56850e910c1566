/**
 * @description
 * This file defines the clinic-facing domain models served by the dashboard API:
 * patients and appointments. Both are backed by sheets in the spreadsheet store
 * and carry only the fields the dashboard renders.
 */

package domain

// Patient represents one registered patient row.
type Patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	BloodGroup  string `json:"blood_group"`
}

// Appointment represents one scheduled visit row.
type Appointment struct {
	ID          string `json:"id"`
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	Email       string `json:"email"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

// CreatePatientRequest is the DTO for registering a patient from the dashboard.
type CreatePatientRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
	BloodGroup  string `json:"blood_group"`
}

// CreateAppointmentRequest is the DTO for booking an appointment.
type CreateAppointmentRequest struct {
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	Email       string `json:"email"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
}
