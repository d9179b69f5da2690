package gateways

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"curanova-server/internal/apperrors"
)

// Feature is one position of a model's input vector. Categorical features
// encode to 1 when the supplied string equals TruthyValue and 0 otherwise.
type Feature struct {
	Name        string
	TruthyValue string
}

func (f Feature) categorical() bool { return f.TruthyValue != "" }

// FeatureSchema is the fixed, ordered input contract of one classifier.
type FeatureSchema struct {
	Model    string
	Path     string
	Features []Feature
}

var schemas = map[string]FeatureSchema{
	"diabetes": {
		Model: "diabetes",
		Path:  "/predict-diabetes",
		Features: []Feature{
			{Name: "pregnancies"},
			{Name: "glucose"},
			{Name: "blood_pressure"},
			{Name: "skin_thickness"},
			{Name: "insulin"},
			{Name: "bmi"},
			{Name: "diabetes_pedigree"},
			{Name: "age"},
		},
	},
	"heart": {
		Model: "heart",
		Path:  "/predict-heart",
		Features: []Feature{
			{Name: "age"},
			{Name: "sex", TruthyValue: "M"},
			{Name: "is_smoking", TruthyValue: "YES"},
			{Name: "cigsPerDay"},
			{Name: "BPMeds"},
			{Name: "prevalentStroke"},
			{Name: "prevalentHyp"},
			{Name: "diabetes"},
			{Name: "totChol"},
			{Name: "sysBP"},
			{Name: "diaBP"},
			{Name: "BMI"},
			{Name: "heartRate"},
		},
	},
}

var schemaAliases = map[string]string{
	"cardiac":          "heart",
	"heart-disease":    "heart",
	"diabetes-risk":    "diabetes",
	"predict-heart":    "heart",
	"predict-diabetes": "diabetes",
}

// LookupSchema resolves a model name or alias to its schema.
func LookupSchema(model string) (FeatureSchema, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if alias, ok := schemaAliases[name]; ok {
		name = alias
	}
	s, ok := schemas[name]
	return s, ok
}

// Models returns the canonical model names.
func Models() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldNames lists the schema's features in vector order.
func (s FeatureSchema) FieldNames() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Encode turns named clinical values into the schema's ordered numeric vector.
func (s FeatureSchema) Encode(values map[string]json.RawMessage) ([]float64, error) {
	vector := make([]float64, len(s.Features))
	var missing, invalid []string

	for i, f := range s.Features {
		raw, ok := values[f.Name]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			missing = append(missing, f.Name)
			continue
		}
		v, err := encodeValue(f, raw)
		if err != nil {
			invalid = append(invalid, f.Name)
			continue
		}
		vector[i] = v
	}

	if len(missing) > 0 {
		return nil, apperrors.Validation("missing required fields for %s prediction: %s", s.Model, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation("invalid values for %s prediction: %s", s.Model, strings.Join(invalid, ", "))
	}
	return vector, nil
}

func encodeValue(f Feature, raw json.RawMessage) (float64, error) {
	if f.categorical() {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		if s == f.TruthyValue {
			return 1, nil
		}
		return 0, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
