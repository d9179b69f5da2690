package models

import (
	"gorm.io/datatypes"
)

// TestPrediction records a successful classifier call. It never changes a test's status.
type TestPrediction struct {
	BaseModel
	TestID      *string        `gorm:"size:36;index" json:"testId,omitempty"`
	PatientID   string         `gorm:"size:36;index;not null" json:"patientId"`
	Model       string         `gorm:"size:50;not null" json:"model"`
	Features    datatypes.JSON `json:"features"`
	Prediction  int            `json:"prediction"`
	Probability float64        `json:"probability"`
}
