package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"curanova-server/internal/middleware"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

// PredictionHandler scores clinical values with the ML classifier.
type PredictionHandler struct {
	predictions *services.PredictionService
}

func NewPredictionHandler(predictions *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

// Predict accepts a flat JSON object of feature values plus an optional testId.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}

	var testID string
	if raw, found := body["testId"]; found {
		if err := json.Unmarshal(raw, &testID); err != nil {
			utils.BadRequest(c, "testId must be a string")
			return
		}
		delete(body, "testId")
	}

	out, err := h.predictions.Predict(c.Request.Context(), services.PredictInput{
		PatientID: patientID,
		Model:     c.Param("model"),
		TestID:    testID,
		Values:    body,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Prediction completed", out)
}
