package models

import (
	"time"
)

// DiagnosticStatus represents the overall status of a triage episode
type DiagnosticStatus string

const (
	DiagnosticScheduled DiagnosticStatus = "scheduled"
	DiagnosticCompleted DiagnosticStatus = "completed"
	DiagnosticCancelled DiagnosticStatus = "cancelled"
)

// TestStatus represents the lifecycle of a single ordered test
type TestStatus string

const (
	TestPending    TestStatus = "pending"
	TestInProgress TestStatus = "in_progress"
	TestCompleted  TestStatus = "completed"
)

// Diagnostic is one triage episode: the reported symptom, the AI summary and the tests ordered for it.
type Diagnostic struct {
	BaseModel
	PatientID     string           `gorm:"size:36;index;not null" json:"patientId"`
	Symptom       string           `gorm:"type:text;not null" json:"symptom"`
	AISummary     string           `gorm:"type:text;not null" json:"aiSummary"`
	Hospital      string           `gorm:"size:255;not null" json:"hospital"`
	ScheduledDate time.Time        `gorm:"not null" json:"scheduledDate"`
	TestName      string           `gorm:"size:512" json:"testName,omitempty"`
	Status        DiagnosticStatus `gorm:"size:20;default:'scheduled'" json:"status"`

	// Relations
	Patient Patient          `gorm:"foreignKey:PatientID" json:"-"`
	Tests   []DiagnosticTest `gorm:"foreignKey:DiagnosticID" json:"tests"`
}

// DiagnosticTest is one ordered procedure belonging to a Diagnostic.
type DiagnosticTest struct {
	BaseModel
	DiagnosticID string     `gorm:"size:36;index;not null" json:"diagnosticId"`
	TestID       string     `gorm:"size:100;not null" json:"testId"`
	TestName     string     `gorm:"size:255;not null" json:"testName"`
	Status       TestStatus `gorm:"size:20;default:'pending'" json:"status"`
	ResultRef    *string    `gorm:"size:1024" json:"resultRef"`
}

// TableName keeps the table name the portal has always used.
func (DiagnosticTest) TableName() string {
	return "tests"
}
