package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/gateways"
	"curanova-server/internal/models"
)

// -- In-memory store --

type memDB struct {
	patients     map[string]models.Patient
	diagnostics  map[string]models.Diagnostic
	tests        map[string]models.DiagnosticTest
	appointments map[string]models.Appointment
	predictions  []models.TestPrediction

	failDiagnostics  error
	failTests        error
	failAppointments error
	failPredictions  error

	locked []string

	clock time.Time
}

func newMemDB() *memDB {
	return &memDB{
		patients:     make(map[string]models.Patient),
		diagnostics:  make(map[string]models.Diagnostic),
		tests:        make(map[string]models.DiagnosticTest),
		appointments: make(map[string]models.Appointment),
		clock:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) stamp(b *models.BaseModel) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	db.clock = db.clock.Add(time.Second)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = db.clock
	}
	b.UpdatedAt = db.clock
}

func (db *memDB) repos() Repositories {
	return Repositories{
		Patients:     &mockPatientRepo{db},
		Diagnostics:  &mockDiagnosticRepo{db},
		Tests:        &mockTestRepo{db},
		Appointments: &mockAppointmentRepo{db},
		Predictions:  &mockPredictionRepo{db},
	}
}

func (db *memDB) snapshot() *memDB {
	cp := *db
	cp.patients = make(map[string]models.Patient, len(db.patients))
	for k, v := range db.patients {
		cp.patients[k] = v
	}
	cp.diagnostics = make(map[string]models.Diagnostic, len(db.diagnostics))
	for k, v := range db.diagnostics {
		cp.diagnostics[k] = v
	}
	cp.tests = make(map[string]models.DiagnosticTest, len(db.tests))
	for k, v := range db.tests {
		cp.tests[k] = v
	}
	cp.appointments = make(map[string]models.Appointment, len(db.appointments))
	for k, v := range db.appointments {
		cp.appointments[k] = v
	}
	cp.predictions = append([]models.TestPrediction(nil), db.predictions...)
	return &cp
}

// mockTx restores the store when fn fails.
type mockTx struct {
	db *memDB
}

func (t *mockTx) InTx(ctx context.Context, fn func(Repositories) error) error {
	saved := t.db.snapshot()
	if err := fn(t.db.repos()); err != nil {
		t.db.patients = saved.patients
		t.db.diagnostics = saved.diagnostics
		t.db.tests = saved.tests
		t.db.appointments = saved.appointments
		t.db.predictions = saved.predictions
		return err
	}
	return nil
}

// -- Mock Repositories --

type mockPatientRepo struct{ db *memDB }

func (m *mockPatientRepo) GetByID(_ context.Context, id string) (*models.Patient, error) {
	p, ok := m.db.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient")
	}
	return &p, nil
}

func (m *mockPatientRepo) GetByExternalID(_ context.Context, externalID string) (*models.Patient, error) {
	for _, p := range m.db.patients {
		if p.ExternalID == externalID {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("patient")
}

func (m *mockPatientRepo) Ensure(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	if existing, err := m.GetByExternalID(ctx, p.ExternalID); err == nil {
		return existing, nil
	}
	m.db.stamp(&p.BaseModel)
	m.db.patients[p.ID] = *p
	return m.GetByID(ctx, p.ID)
}

func (m *mockPatientRepo) UpsertProfile(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	existing, err := m.GetByExternalID(ctx, p.ExternalID)
	if err != nil {
		return m.Ensure(ctx, p)
	}
	existing.Email = p.Email
	existing.FirstName = p.FirstName
	existing.LastName = p.LastName
	existing.ProfileImage = p.ProfileImage
	m.db.patients[existing.ID] = *existing
	return existing, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *models.Patient) error {
	if _, ok := m.db.patients[p.ID]; !ok {
		return apperrors.NotFound("patient")
	}
	m.db.patients[p.ID] = *p
	return nil
}

func (m *mockPatientRepo) TouchSignIn(_ context.Context, externalID string, at time.Time) (bool, error) {
	for id, p := range m.db.patients {
		if p.ExternalID == externalID {
			p.LastSignInAt = &at
			m.db.patients[id] = p
			return true, nil
		}
	}
	return false, nil
}

type mockDiagnosticRepo struct{ db *memDB }

func (m *mockDiagnosticRepo) Create(_ context.Context, d *models.Diagnostic) error {
	if m.db.failDiagnostics != nil {
		return apperrors.Storage(m.db.failDiagnostics, "insert diagnostic")
	}
	m.db.stamp(&d.BaseModel)
	row := *d
	row.Tests = nil
	m.db.diagnostics[d.ID] = row
	return nil
}

func (m *mockDiagnosticRepo) GetByID(_ context.Context, id string) (*models.Diagnostic, error) {
	d, ok := m.db.diagnostics[id]
	if !ok {
		return nil, apperrors.NotFound("diagnostic")
	}
	return &d, nil
}

func (m *mockDiagnosticRepo) GetForPatient(ctx context.Context, id, patientID string) (*models.Diagnostic, error) {
	d, err := m.GetByID(ctx, id)
	if err != nil || d.PatientID != patientID {
		return nil, apperrors.NotFound("diagnostic")
	}
	d.Tests = m.db.testsOf(id)
	return d, nil
}

func (m *mockDiagnosticRepo) ListByPatient(_ context.Context, patientID string) ([]models.Diagnostic, error) {
	var out []models.Diagnostic
	for _, d := range m.db.diagnostics {
		if d.PatientID == patientID {
			d.Tests = m.db.testsOf(d.ID)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockDiagnosticRepo) LockForUpdate(ctx context.Context, id string) (*models.Diagnostic, error) {
	d, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.db.locked = append(m.db.locked, id)
	return d, nil
}

func (m *mockDiagnosticRepo) UpdateStatus(_ context.Context, id string, from, to models.DiagnosticStatus) (bool, error) {
	d, ok := m.db.diagnostics[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	m.db.diagnostics[id] = d
	return true, nil
}

func (db *memDB) testsOf(diagnosticID string) []models.DiagnosticTest {
	var out []models.DiagnosticTest
	for _, t := range db.tests {
		if t.DiagnosticID == diagnosticID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type mockTestRepo struct{ db *memDB }

func (m *mockTestRepo) CreateBatch(_ context.Context, tests []models.DiagnosticTest) error {
	if m.db.failTests != nil {
		return apperrors.Storage(m.db.failTests, "insert tests")
	}
	for i := range tests {
		if _, ok := m.db.diagnostics[tests[i].DiagnosticID]; !ok {
			return apperrors.Storage(errors.New("foreign key violation"), "insert tests")
		}
		m.db.stamp(&tests[i].BaseModel)
		m.db.tests[tests[i].ID] = tests[i]
	}
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, id string) (*models.DiagnosticTest, error) {
	t, ok := m.db.tests[id]
	if !ok {
		return nil, apperrors.NotFound("test")
	}
	return &t, nil
}

func (m *mockTestRepo) Transition(_ context.Context, id string, from []models.TestStatus, to models.TestStatus, resultRef *string) (bool, error) {
	t, ok := m.db.tests[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if t.Status == f {
			t.Status = to
			if resultRef != nil {
				ref := *resultRef
				t.ResultRef = &ref
			}
			m.db.tests[id] = t
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTestRepo) CountNotCompleted(_ context.Context, diagnosticID string) (int64, error) {
	var n int64
	for _, t := range m.db.tests {
		if t.DiagnosticID == diagnosticID && t.Status != models.TestCompleted {
			n++
		}
	}
	return n, nil
}

type mockAppointmentRepo struct{ db *memDB }

func (m *mockAppointmentRepo) Create(_ context.Context, a *models.Appointment) error {
	if m.db.failAppointments != nil {
		return apperrors.Storage(m.db.failAppointments, "insert appointment")
	}
	m.db.stamp(&a.BaseModel)
	m.db.appointments[a.ID] = *a
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id string) (*models.Appointment, error) {
	a, ok := m.db.appointments[id]
	if !ok {
		return nil, apperrors.NotFound("appointment")
	}
	return &a, nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID string) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, a := range m.db.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id string, from, to models.AppointmentStatus, confirmedAt *time.Time) (bool, error) {
	a, ok := m.db.appointments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	if confirmedAt != nil {
		a.ConfirmedAt = confirmedAt
	}
	m.db.appointments[id] = a
	return true, nil
}

type mockPredictionRepo struct{ db *memDB }

func (m *mockPredictionRepo) Create(_ context.Context, p *models.TestPrediction) error {
	if m.db.failPredictions != nil {
		return apperrors.Storage(m.db.failPredictions, "insert prediction")
	}
	m.db.stamp(&p.BaseModel)
	m.db.predictions = append(m.db.predictions, *p)
	return nil
}

// -- Collaborators --

type mockNotifier struct {
	sent []string
	err  error
}

func (n *mockNotifier) SendAppointmentConfirmation(_ context.Context, to string, _ *models.Appointment, _ *models.Diagnostic) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, to)
	return nil
}

type mockPredictor struct {
	got    []float64
	model  string
	result gateways.Prediction
	err    error
}

func (p *mockPredictor) Predict(_ context.Context, model string, features []float64) (gateways.Prediction, error) {
	p.model = model
	p.got = features
	return p.result, p.err
}
