package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"curanova-server/internal/utils"
)

const maxWebhookBody = 1 << 20

// IdentityEvents applies verified identity-provider events.
type IdentityEvents interface {
	HandleWebhook(ctx context.Context, payload []byte) (string, error)
}

type signatureVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

// WebhookHandler receives Svix-signed identity-provider webhooks.
type WebhookHandler struct {
	verifier signatureVerifier
	identity IdentityEvents
	log      zerolog.Logger
}

// NewWebhookHandler builds the handler. An empty secret leaves the endpoint
// disabled.
func NewWebhookHandler(secret string, identity IdentityEvents, log zerolog.Logger) (*WebhookHandler, error) {
	h := &WebhookHandler{identity: identity, log: log.With().Str("component", "identity_webhook").Logger()}
	if secret == "" {
		return h, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	h.verifier = wh
	return h, nil
}

// Identity verifies the signature and applies the event. Bad signatures get
// a 400; unparseable payloads a 503 so the provider redelivers.
func (h *WebhookHandler) Identity(c *gin.Context) {
	if h.verifier == nil {
		utils.NotImplemented(c, "Identity webhook signing secret is not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.BadRequest(c, "Could not read webhook body")
		return
	}
	if err := h.verifier.Verify(payload, c.Request.Header); err != nil {
		h.log.Warn().Err(err).Str("svix_id", c.GetHeader("svix-id")).Msg("identity webhook signature rejected")
		utils.BadRequest(c, "Invalid webhook signature")
		return
	}

	eventType, err := h.identity.HandleWebhook(c.Request.Context(), payload)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	h.log.Info().Str("event", eventType).Str("svix_id", c.GetHeader("svix-id")).Msg("identity webhook processed")
	utils.Success(c, "Webhook processed", gin.H{"type": eventType})
}
