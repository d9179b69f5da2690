package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/catalog"
	"curanova-server/internal/gateways"
	"curanova-server/internal/models"
)

// Predictor scores an ordered feature vector with a named model.
type Predictor interface {
	Predict(ctx context.Context, model string, features []float64) (gateways.Prediction, error)
}

// PredictInput carries raw clinical values keyed by feature name.
type PredictInput struct {
	PatientID string
	Model     string
	TestID    string
	Values    map[string]json.RawMessage
}

// PredictionResult is returned to the patient.
type PredictionResult struct {
	TestID      string  `json:"testId,omitempty"`
	Model       string  `json:"model"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// PredictionService encodes clinical values and asks the classifier for a
// prediction. It never changes a test's status.
type PredictionService struct {
	predictor   Predictor
	tests       TestRepository
	diagnostics DiagnosticRepository
	predictions PredictionRepository
	catalog     *catalog.Catalog
	log         zerolog.Logger
}

func NewPredictionService(predictor Predictor, repos Repositories, cat *catalog.Catalog, log zerolog.Logger) *PredictionService {
	return &PredictionService{
		predictor:   predictor,
		tests:       repos.Tests,
		diagnostics: repos.Diagnostics,
		predictions: repos.Predictions,
		catalog:     cat,
		log:         log.With().Str("component", "predictions").Logger(),
	}
}

func (s *PredictionService) Predict(ctx context.Context, in PredictInput) (*PredictionResult, error) {
	schema, ok := gateways.LookupSchema(in.Model)
	if !ok {
		return nil, apperrors.Validation("unknown prediction model %q, expected one of: %s", in.Model, strings.Join(gateways.Models(), ", "))
	}

	var testID *string
	if id := strings.TrimSpace(in.TestID); id != "" {
		if err := s.checkTest(ctx, in.PatientID, id, schema.Model); err != nil {
			return nil, err
		}
		testID = &id
	}

	features, err := schema.Encode(in.Values)
	if err != nil {
		return nil, err
	}

	pred, err := s.predictor.Predict(ctx, schema.Model, features)
	if err != nil {
		return nil, err
	}

	s.record(ctx, in, schema.Model, testID, features, pred)

	out := &PredictionResult{Model: schema.Model, Prediction: pred.Prediction, Probability: pred.Probability}
	if testID != nil {
		out.TestID = *testID
	}
	return out, nil
}

// checkTest ensures the test belongs to the patient and fits the model.
func (s *PredictionService) checkTest(ctx context.Context, patientID, testID, model string) error {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	if _, err := s.diagnostics.GetForPatient(ctx, test.DiagnosticID, patientID); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return apperrors.NotFound("test")
		}
		return err
	}
	if entry, ok := s.catalog.Lookup(test.TestID); ok && entry.PredictionModel != "" && entry.PredictionModel != model {
		return apperrors.Validation("test %s is scored by the %s model, not %s", test.TestID, entry.PredictionModel, model)
	}
	return nil
}

// record keeps an audit row of the prediction. Failures are logged only.
func (s *PredictionService) record(ctx context.Context, in PredictInput, model string, testID *string, features []float64, pred gateways.Prediction) {
	if s.predictions == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"vector": features, "inputs": in.Values})
	if err != nil {
		s.log.Warn().Err(err).Msg("prediction features not recorded")
		return
	}
	row := &models.TestPrediction{
		TestID:      testID,
		PatientID:   in.PatientID,
		Model:       model,
		Features:    datatypes.JSON(payload),
		Prediction:  pred.Prediction,
		Probability: pred.Probability,
	}
	if err := s.predictions.Create(ctx, row); err != nil {
		s.log.Warn().Err(err).Str("model", model).Msg("prediction not recorded")
	}
}
