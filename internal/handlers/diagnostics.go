package handlers

import (
	"github.com/gin-gonic/gin"

	"curanova-server/internal/middleware"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

// DiagnosticHandler handles diagnostic related requests.
type DiagnosticHandler struct {
	diagnostics *services.DiagnosticService
}

// NewDiagnosticHandler creates a new DiagnosticHandler.
func NewDiagnosticHandler(diagnostics *services.DiagnosticService) *DiagnosticHandler {
	return &DiagnosticHandler{diagnostics: diagnostics}
}

// CreateDiagnosticRequest is the outcome of a triage conversation plus the
// tests the patient picked. Required fields are checked by the service so the
// error lists every missing one.
type CreateDiagnosticRequest struct {
	PatientID       string   `json:"patientId"`
	Symptom         string   `json:"symptom"`
	AISummary       string   `json:"aiSummary"`
	Hospital        string   `json:"hospital"`
	ScheduledDate   string   `json:"scheduledDate"`
	TestName        string   `json:"testName"`
	SelectedTests   []string `json:"selectedTests"`
	AppointmentDate string   `json:"appointmentDate"`
	TimeSlot        string   `json:"timeSlot"`
}

// CreateDiagnostic persists a diagnostic with its tests and appointment.
func (h *DiagnosticHandler) CreateDiagnostic(c *gin.Context) {
	var req CreateDiagnosticRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}
	if req.PatientID != "" && req.PatientID != patientID {
		utils.Forbidden(c, "Patients can only create diagnostics for themselves.")
		return
	}

	out, err := h.diagnostics.Create(c.Request.Context(), services.CreateDiagnosticInput{
		PatientID:       req.PatientID,
		Symptom:         req.Symptom,
		AISummary:       req.AISummary,
		Hospital:        req.Hospital,
		ScheduledDate:   req.ScheduledDate,
		TestName:        req.TestName,
		SelectedTests:   req.SelectedTests,
		AppointmentDate: req.AppointmentDate,
		TimeSlot:        req.TimeSlot,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	message := "Diagnostic created successfully"
	if len(out.Warnings) > 0 {
		message = "Diagnostic created with warnings"
	}
	utils.Created(c, message, out)
}

// ListDiagnostics returns the patient's diagnostics, newest first.
func (h *DiagnosticHandler) ListDiagnostics(c *gin.Context) {
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}
	if requested := c.Query("patientId"); requested != "" && requested != patientID {
		utils.Forbidden(c, "Patients can only view their own diagnostics.")
		return
	}

	list, err := h.diagnostics.List(c.Request.Context(), patientID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Diagnostics fetched successfully", list)
}

// GetDiagnostic returns one of the patient's diagnostics with its tests.
func (h *DiagnosticHandler) GetDiagnostic(c *gin.Context) {
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	diag, err := h.diagnostics.Get(c.Request.Context(), patientID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Diagnostic fetched successfully", diag)
}
