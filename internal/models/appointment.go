package models

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// DefaultTimeSlot is used when the patient did not pick a slot.
const DefaultTimeSlot = "09:00 AM"

// Appointment represents the visit tied to a Diagnostic
type Appointment struct {
	BaseModel
	PatientID       string            `gorm:"size:36;index;not null" json:"patientId"`
	DiagnosticID    string            `gorm:"size:36;index;not null" json:"diagnosticId"`
	AppointmentDate time.Time         `gorm:"not null" json:"appointmentDate"`
	AppointmentTime string            `gorm:"size:20" json:"appointmentTime"`
	Status          AppointmentStatus `gorm:"size:20;default:'scheduled'" json:"status"`
	ConfirmedAt     *time.Time        `json:"confirmedAt,omitempty"`

	// Relations
	Patient    Patient     `gorm:"foreignKey:PatientID" json:"-"`
	Diagnostic *Diagnostic `gorm:"foreignKey:DiagnosticID" json:"diagnostic,omitempty"`
}
