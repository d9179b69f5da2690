package handlers

import (
	"github.com/gin-gonic/gin"

	"curanova-server/internal/middleware"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

// PatientHandler serves the patient's own record and onboarding.
type PatientHandler struct {
	identity *services.IdentityService
}

func NewPatientHandler(identity *services.IdentityService) *PatientHandler {
	return &PatientHandler{identity: identity}
}

// GetProfile returns the authenticated patient.
func (h *PatientHandler) GetProfile(c *gin.Context) {
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}
	patient, err := h.identity.Profile(c.Request.Context(), patientID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Profile fetched successfully", patient)
}

// CompleteOnboarding stores the patient's contact and insurance details.
func (h *PatientHandler) CompleteOnboarding(c *gin.Context) {
	var req services.MedicalInfo
	if !utils.BindAndValidate(c, &req) {
		return
	}
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	patient, err := h.identity.CompleteOnboarding(c.Request.Context(), patientID, req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Onboarding completed", patient)
}

// OnboardingStatus reports whether the caller still needs to onboard. It only
// needs a valid token; the patient row may not exist yet.
func (h *PatientHandler) OnboardingStatus(c *gin.Context) {
	claims, ok := middleware.GetClaimsFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	status, err := h.identity.OnboardingStatus(c.Request.Context(), claims.Subject)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Onboarding status fetched successfully", status)
}
