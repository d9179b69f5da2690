package handlers

import (
	"github.com/gin-gonic/gin"

	"curanova-server/internal/middleware"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	appointments *services.AppointmentService
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(appointments *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// BookAppointmentRequest books a visit for an existing diagnostic.
type BookAppointmentRequest struct {
	DiagnosticID  string `json:"diagnosticId" binding:"required"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
}

// UpdateAppointmentRequest is a patient status change. NotifyEmail is
// required when confirming.
type UpdateAppointmentRequest struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
	NotifyEmail   string `json:"notifyEmail" binding:"omitempty,email"`
}

// BookAppointment handles creating a stand-alone appointment.
func (h *AppointmentHandler) BookAppointment(c *gin.Context) {
	var req BookAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	appt, err := h.appointments.Book(c.Request.Context(), services.BookInput{
		PatientID:     patientID,
		DiagnosticID:  req.DiagnosticID,
		PreferredDate: req.PreferredDate,
		PreferredTime: req.PreferredTime,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appt)
}

// ListAppointments handles fetching appointments for the logged-in patient.
func (h *AppointmentHandler) ListAppointments(c *gin.Context) {
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	list, err := h.appointments.List(c.Request.Context(), patientID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", list)
}

// UpdateAppointment confirms or cancels one of the patient's appointments.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	var req UpdateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	result, err := h.appointments.Update(c.Request.Context(), services.UpdateInput{
		PatientID:     patientID,
		AppointmentID: req.AppointmentID,
		Status:        req.Status,
		NotifyEmail:   req.NotifyEmail,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment status updated successfully", result)
}

// CompleteAppointment is the provider marking the visit as done.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	appt, err := h.appointments.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment completed successfully", appt)
}
