// Package catalog lists the diagnostic tests patients can order.
package catalog

import "sort"

// Test is one orderable diagnostic procedure.
type Test struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Duration    string `json:"duration"`
	Category    string `json:"category"`
	// PredictionModel names the classifier that can score this test's inputs, if any.
	PredictionModel string `json:"predictionModel,omitempty"`
}

// Catalog is a read-only lookup of orderable tests.
type Catalog struct {
	tests map[string]Test
}

// Default returns the portal's standard test catalog.
func Default() *Catalog {
	return New([]Test{
		{
			ID:              "fasting_glucose_blood_test",
			Name:            "Fasting Glucose Blood Test",
			Description:     "Measures blood sugar levels after fasting to screen for diabetes or prediabetes.",
			Price:           "$25",
			Duration:        "Same day",
			Category:        "blood",
			PredictionModel: "diabetes",
		},
		{
			ID:              "cardiovascular_risk_panel",
			Name:            "Cardiovascular Risk Panel",
			Description:     "Evaluates cholesterol, blood pressure, and heart-related biomarkers to assess risk of heart disease.",
			Price:           "$100",
			Duration:        "1-2 days",
			Category:        "cardiology",
			PredictionModel: "heart",
		},
		{
			ID:          "kidney_function_test",
			Name:        "Kidney Function Test",
			Description: "Analyzes blood urea nitrogen and creatinine levels to detect kidney dysfunction or disease.",
			Price:       "$45",
			Duration:    "1 day",
			Category:    "blood",
		},
		{
			ID:          "liver_enzyme_panel",
			Name:        "Liver Enzyme Panel",
			Description: "Checks enzyme levels (ALT, AST, ALP, bilirubin) to evaluate liver function or potential liver disease.",
			Price:       "$55",
			Duration:    "1 day",
			Category:    "blood",
		},
		{
			ID:          "parkinsons_screening",
			Name:        "Parkinson's Screening Test",
			Description: "Analyzes neurological and voice metrics (jitter, shimmer, pitch) for early signs of Parkinson's disease.",
			Price:       "$120",
			Duration:    "2-3 days",
			Category:    "neurology",
		},
	})
}

// New builds a catalog from tests.
func New(tests []Test) *Catalog {
	c := &Catalog{tests: make(map[string]Test, len(tests))}
	for _, t := range tests {
		c.tests[t.ID] = t
	}
	return c
}

// Lookup returns the catalog entry for id.
func (c *Catalog) Lookup(id string) (Test, bool) {
	t, ok := c.tests[id]
	return t, ok
}

// DisplayName returns the human name for id, falling back to id itself for
// tests the AI recommended outside the catalog.
func (c *Catalog) DisplayName(id string) string {
	if t, ok := c.tests[id]; ok {
		return t.Name
	}
	return id
}

// All returns every test ordered by id.
func (c *Catalog) All() []Test {
	out := make([]Test, 0, len(c.tests))
	for _, t := range c.tests {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
