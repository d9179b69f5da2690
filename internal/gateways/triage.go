package gateways

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"curanova-server/internal/config"
	"curanova-server/internal/metrics"
)

// TriageKind is the closed set of outcomes of a triage conversation.
type TriageKind string

const (
	TriageNone   TriageKind = "none"
	TriageTest   TriageKind = "test"
	TriageDoctor TriageKind = "doctor"
)

// ApologyReply replaces the assistant's answer whenever the triage service cannot be reached.
const ApologyReply = "I'm sorry, I couldn't process your request right now. Please try again in a moment."

const emptyReply = "I'm sorry, I couldn't process your request."

// ChatMessage is one turn of the triage conversation.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// Classification is the triage outcome returned to the chat surface.
type Classification struct {
	Kind     TriageKind `json:"type"`
	TestID   string     `json:"testId,omitempty"`
	TestName string     `json:"testName,omitempty"`
	Reply    string     `json:"reply"`
	// Degraded is set when the reply is the canned apology.
	Degraded bool `json:"-"`
}

// workerResponse is the loosely-typed shape the AI worker answers with.
type workerResponse struct {
	Type     string `json:"type"`
	TestName string `json:"testName"`
	TestID   string `json:"testId"`
	Reply    string `json:"reply"`
}

// TriageGateway forwards conversations to the AI triage worker.
type TriageGateway struct {
	url        string
	client     *http.Client
	log        zerolog.Logger
	metrics    *metrics.Workflow
	retryDelay time.Duration
}

// NewTriageGateway creates a gateway for the worker at cfg.URL.
func NewTriageGateway(cfg config.UpstreamConfig, log zerolog.Logger, m *metrics.Workflow) *TriageGateway {
	return &TriageGateway{
		url:        cfg.URL,
		client:     newHTTPClient(cfg.Timeout),
		log:        log.With().Str("component", "triage_gateway").Logger(),
		metrics:    m,
		retryDelay: 250 * time.Millisecond,
	}
}

// Classify never fails: after one retry it falls back to a "none" outcome with an apology.
func (g *TriageGateway) Classify(ctx context.Context, conversation []ChatMessage) Classification {
	if g.url == "" {
		g.log.Error().Msg("triage worker URL not configured")
		return apology()
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		var resp workerResponse
		err := postJSON(ctx, g.client, g.url, map[string]any{"messages": conversation}, &resp)
		if err == nil {
			return parseClassification(resp)
		}
		lastErr = err
		g.log.Warn().Err(err).Int("attempt", attempt).Msg("triage call failed")

		if attempt == 1 && !sleepCtx(ctx, g.retryDelay) {
			break
		}
	}

	if g.metrics != nil {
		g.metrics.UpstreamFailures.WithLabelValues("triage").Inc()
	}
	g.log.Error().Err(lastErr).Int("messages", len(conversation)).Msg("triage unavailable, replying with apology")
	return apology()
}

func parseClassification(resp workerResponse) Classification {
	reply := strings.TrimSpace(resp.Reply)
	if reply == "" {
		reply = emptyReply
	}

	switch TriageKind(strings.ToLower(strings.TrimSpace(resp.Type))) {
	case TriageTest:
		testID := strings.TrimSpace(resp.TestID)
		if testID == "" {
			testID = strings.TrimSpace(resp.TestName)
		}
		if testID == "" {
			return Classification{Kind: TriageNone, Reply: reply}
		}
		return Classification{Kind: TriageTest, TestID: testID, TestName: strings.TrimSpace(resp.TestName), Reply: reply}
	case TriageDoctor:
		return Classification{Kind: TriageDoctor, Reply: reply}
	default:
		return Classification{Kind: TriageNone, Reply: reply}
	}
}

func apology() Classification {
	return Classification{Kind: TriageNone, Reply: ApologyReply, Degraded: true}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

