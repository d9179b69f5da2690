package catalog

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	all := c.All()
	if len(all) != 5 {
		t.Fatalf("expected 5 tests, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All() not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}

	glucose, ok := c.Lookup("fasting_glucose_blood_test")
	if !ok {
		t.Fatal("glucose test missing")
	}
	if glucose.PredictionModel != "diabetes" {
		t.Errorf("glucose test should map to diabetes model, got %q", glucose.PredictionModel)
	}
	if panel, _ := c.Lookup("cardiovascular_risk_panel"); panel.PredictionModel != "heart" {
		t.Errorf("cardio panel should map to heart model, got %q", panel.PredictionModel)
	}
}

func TestDisplayName(t *testing.T) {
	c := Default()
	if got := c.DisplayName("kidney_function_test"); got != "Kidney Function Test" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := c.DisplayName("thyroid_panel"); got != "thyroid_panel" {
		t.Errorf("unknown ids should fall back to themselves, got %q", got)
	}
}
