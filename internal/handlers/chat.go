package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/gateways"
	"curanova-server/internal/utils"
)

// Classifier runs a triage conversation. It always returns a reply.
type Classifier interface {
	Classify(ctx context.Context, conversation []gateways.ChatMessage) gateways.Classification
}

// ChatHandler serves the triage chat.
type ChatHandler struct {
	triage Classifier
}

func NewChatHandler(triage Classifier) *ChatHandler {
	return &ChatHandler{triage: triage}
}

// ChatRequest is the conversation so far, oldest turn first.
type ChatRequest struct {
	Messages []gateways.ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

// Chat classifies the conversation. When the triage service cannot be reached
// the response is a 500 whose data still carries the canned apology, so the
// client can show a reply instead of a raw error.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	result := h.triage.Classify(c.Request.Context(), req.Messages)
	if result.Degraded {
		c.JSON(http.StatusInternalServerError, utils.ResponseData{
			Status:  http.StatusInternalServerError,
			Message: "Triage assistant unavailable",
			Data:    result,
			Error:   "triage service unreachable",
			Code:    string(apperrors.KindUpstreamUnavailable),
		})
		return
	}
	utils.Success(c, "Triage completed", result)
}
