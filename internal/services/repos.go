// Package services implements the diagnostic workflow: identity resolution,
// diagnostic and test records, appointments and predictions.
package services

import (
	"context"
	"time"

	"curanova-server/internal/models"
)

// Repositories return *apperrors.Error values: KindNotFound for missing rows
// and KindStorage for persistence failures.

type PatientRepository interface {
	GetByID(ctx context.Context, id string) (*models.Patient, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Patient, error)
	// Ensure inserts p unless a patient with the same ExternalID exists and returns the stored row.
	Ensure(ctx context.Context, p *models.Patient) (*models.Patient, error)
	// UpsertProfile inserts p or overwrites the profile columns of the existing row.
	UpsertProfile(ctx context.Context, p *models.Patient) (*models.Patient, error)
	Update(ctx context.Context, p *models.Patient) error
	// TouchSignIn sets LastSignInAt and reports whether a row matched.
	TouchSignIn(ctx context.Context, externalID string, at time.Time) (bool, error)
}

type DiagnosticRepository interface {
	// Create inserts the diagnostic row only, never its associations.
	Create(ctx context.Context, d *models.Diagnostic) error
	GetByID(ctx context.Context, id string) (*models.Diagnostic, error)
	// GetForPatient loads the diagnostic together with its tests.
	GetForPatient(ctx context.Context, id, patientID string) (*models.Diagnostic, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Diagnostic, error)
	// LockForUpdate loads the diagnostic and holds a row lock on it until the
	// surrounding transaction ends.
	LockForUpdate(ctx context.Context, id string) (*models.Diagnostic, error)
	// UpdateStatus moves the diagnostic to "to" only if it is currently "from".
	UpdateStatus(ctx context.Context, id string, from, to models.DiagnosticStatus) (bool, error)
}

type TestRepository interface {
	CreateBatch(ctx context.Context, tests []models.DiagnosticTest) error
	GetByID(ctx context.Context, id string) (*models.DiagnosticTest, error)
	// Transition moves the test to "to" only if its status is one of from. resultRef is written when non-nil.
	Transition(ctx context.Context, id string, from []models.TestStatus, to models.TestStatus, resultRef *string) (bool, error)
	CountNotCompleted(ctx context.Context, diagnosticID string) (int64, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *models.Appointment) error
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
	// UpdateStatus moves the appointment to "to" only if it is currently "from".
	UpdateStatus(ctx context.Context, id string, from, to models.AppointmentStatus, confirmedAt *time.Time) (bool, error)
}

type PredictionRepository interface {
	Create(ctx context.Context, p *models.TestPrediction) error
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Patients     PatientRepository
	Diagnostics  DiagnosticRepository
	Tests        TestRepository
	Appointments AppointmentRepository
	Predictions  PredictionRepository
}

// Transactor runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Repositories) error) error
}
