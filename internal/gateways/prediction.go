package gateways

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/config"
	"curanova-server/internal/metrics"
)

// Prediction is a binary classifier outcome.
type Prediction struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

type classifierResponse struct {
	Prediction  *float64 `json:"prediction"`
	Probability *float64 `json:"probability"`
}

// PredictionGateway forwards feature vectors to the ML service. Calls are never retried.
type PredictionGateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	metrics *metrics.Workflow
}

// NewPredictionGateway creates a gateway for the ML service at cfg.URL.
func NewPredictionGateway(cfg config.UpstreamConfig, log zerolog.Logger, m *metrics.Workflow) *PredictionGateway {
	return &PredictionGateway{
		baseURL: cfg.URL,
		client:  newHTTPClient(cfg.Timeout),
		log:     log.With().Str("component", "prediction_gateway").Logger(),
		metrics: m,
	}
}

// Predict sends features, already in schema order, to the model's endpoint.
func (g *PredictionGateway) Predict(ctx context.Context, model string, features []float64) (Prediction, error) {
	schema, ok := LookupSchema(model)
	if !ok {
		return Prediction{}, apperrors.Validation("unknown prediction model %q", model)
	}
	if len(features) != len(schema.Features) {
		return Prediction{}, apperrors.Validation("%s model expects %d features, got %d", schema.Model, len(schema.Features), len(features))
	}
	if g.baseURL == "" {
		return Prediction{}, g.fail(schema.Model, fmt.Errorf("prediction service URL not configured"))
	}

	var resp classifierResponse
	if err := postJSON(ctx, g.client, g.baseURL+schema.Path, map[string]any{"features": features}, &resp); err != nil {
		return Prediction{}, g.fail(schema.Model, err)
	}

	out, err := resp.toPrediction()
	if err != nil {
		return Prediction{}, g.fail(schema.Model, err)
	}
	g.log.Debug().Str("model", schema.Model).Int("prediction", out.Prediction).Float64("probability", out.Probability).Msg("prediction received")
	return out, nil
}

func (g *PredictionGateway) fail(model string, err error) error {
	if g.metrics != nil {
		g.metrics.UpstreamFailures.WithLabelValues("prediction").Inc()
	}
	g.log.Error().Err(err).Str("model", model).Msg("prediction call failed")
	return apperrors.Upstream(err, "prediction service unavailable")
}

func (r classifierResponse) toPrediction() (Prediction, error) {
	if r.Prediction == nil {
		return Prediction{}, fmt.Errorf("classifier response has no prediction")
	}
	var label int
	switch *r.Prediction {
	case 0:
		label = 0
	case 1:
		label = 1
	default:
		return Prediction{}, fmt.Errorf("classifier returned non-binary prediction %v", *r.Prediction)
	}

	probability := float64(label)
	if r.Probability != nil {
		probability = *r.Probability
	}
	if probability < 0 || probability > 1 {
		return Prediction{}, fmt.Errorf("classifier returned probability %v outside [0,1]", probability)
	}
	return Prediction{Prediction: label, Probability: probability}, nil
}
