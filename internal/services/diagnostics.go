package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/blobstore"
	"curanova-server/internal/catalog"
	"curanova-server/internal/events"
	"curanova-server/internal/metrics"
	"curanova-server/internal/models"
)

// Warnings attached to a diagnostic that was persisted without all of its children.
const (
	WarningTestsNotAttached      = "tests_not_attached"
	WarningAppointmentNotCreated = "appointment_not_created"
)

// ResultFiles stores result documents and signs download links for them.
type ResultFiles interface {
	Put(ctx context.Context, obj blobstore.Object) (string, error)
	PresignURL(ctx context.Context, ref string) (string, error)
}

// CreateDiagnosticInput is the outcome of a completed triage and test selection.
type CreateDiagnosticInput struct {
	PatientID     string
	Symptom       string
	AISummary     string
	Hospital      string
	ScheduledDate string
	// TestName is the single recommended test, used when SelectedTests is empty.
	TestName        string
	SelectedTests   []string
	AppointmentDate string
	TimeSlot        string
}

// DiagnosticCreation is returned by Create. TestsAttached is false when the
// diagnostic was persisted but its tests were not.
type DiagnosticCreation struct {
	Diagnostic    *models.Diagnostic  `json:"diagnostic"`
	Appointment   *models.Appointment `json:"appointment,omitempty"`
	TestsAttached bool                `json:"testsAttached"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// DiagnosticOptions tunes the write policy of DiagnosticService.
type DiagnosticOptions struct {
	// AtomicWrites wraps diagnostic, tests and appointment in one transaction.
	// When false the parent is written first and children are best effort.
	AtomicWrites bool
	// Files is optional; without it result uploads are unavailable.
	Files ResultFiles
}

// DiagnosticService owns diagnostics and their tests.
type DiagnosticService struct {
	repos   Repositories
	tx      Transactor
	catalog *catalog.Catalog
	files   ResultFiles
	atomic  bool
	metrics *metrics.Workflow
	events  emitter
	log     zerolog.Logger
}

func NewDiagnosticService(repos Repositories, tx Transactor, cat *catalog.Catalog, pub events.Publisher, m *metrics.Workflow, log zerolog.Logger, opts DiagnosticOptions) *DiagnosticService {
	log = log.With().Str("component", "diagnostics").Logger()
	return &DiagnosticService{
		repos:   repos,
		tx:      tx,
		catalog: cat,
		files:   opts.Files,
		atomic:  opts.AtomicWrites,
		metrics: m,
		events:  emitter{pub: pub, metrics: m, log: log},
		log:     log,
	}
}

// ResultFilesEnabled reports whether result uploads are configured.
func (s *DiagnosticService) ResultFilesEnabled() bool {
	return s.files != nil
}

// Create validates in and persists the diagnostic, its tests and its appointment.
// Validation happens before any write.
func (s *DiagnosticService) Create(ctx context.Context, in CreateDiagnosticInput) (*DiagnosticCreation, error) {
	diag, tests, appt, err := s.plan(in)
	if err != nil {
		return nil, err
	}

	var out *DiagnosticCreation
	if s.atomic {
		out, err = s.createAtomic(ctx, diag, tests, appt)
	} else {
		out, err = s.createDegradable(ctx, diag, tests, appt)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DiagnosticsCreated.Inc()
	}
	s.log.Info().
		Str("diagnostic_id", diag.ID).
		Str("patient_id", diag.PatientID).
		Int("tests", len(out.Diagnostic.Tests)).
		Bool("atomic", s.atomic).
		Strs("warnings", out.Warnings).
		Msg("diagnostic created")
	s.events.emit(ctx, events.Event{
		Type:      events.DiagnosticCreated,
		PatientID: diag.PatientID,
		EntityID:  diag.ID,
		Data:      map[string]any{"tests": len(out.Diagnostic.Tests), "testsAttached": out.TestsAttached},
	})
	return out, nil
}

func (s *DiagnosticService) plan(in CreateDiagnosticInput) (*models.Diagnostic, []models.DiagnosticTest, *models.Appointment, error) {
	required := []struct{ name, value string }{
		{"patientId", in.PatientID},
		{"symptom", in.Symptom},
		{"aiSummary", in.AISummary},
		{"hospital", in.Hospital},
		{"scheduledDate", in.ScheduledDate},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, nil, apperrors.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	scheduled, err := parseDate("scheduledDate", in.ScheduledDate)
	if err != nil {
		return nil, nil, nil, err
	}
	apptDate := scheduled
	if strings.TrimSpace(in.AppointmentDate) != "" {
		if apptDate, err = parseDate("appointmentDate", in.AppointmentDate); err != nil {
			return nil, nil, nil, err
		}
	}

	ids := selectedTestIDs(in.SelectedTests, in.TestName)
	if len(ids) == 0 {
		return nil, nil, nil, apperrors.Validation("at least one test must be selected")
	}

	tests := make([]models.DiagnosticTest, len(ids))
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = s.catalog.DisplayName(id)
		tests[i] = models.DiagnosticTest{TestID: id, TestName: names[i], Status: models.TestPending}
	}

	slot := strings.TrimSpace(in.TimeSlot)
	if slot == "" {
		slot = models.DefaultTimeSlot
	}

	diag := &models.Diagnostic{
		PatientID:     strings.TrimSpace(in.PatientID),
		Symptom:       strings.TrimSpace(in.Symptom),
		AISummary:     strings.TrimSpace(in.AISummary),
		Hospital:      strings.TrimSpace(in.Hospital),
		ScheduledDate: scheduled,
		TestName:      strings.Join(names, ", "),
		Status:        models.DiagnosticScheduled,
	}
	appt := &models.Appointment{
		PatientID:       diag.PatientID,
		AppointmentDate: apptDate,
		AppointmentTime: slot,
		Status:          models.StatusScheduled,
	}
	return diag, tests, appt, nil
}

// selectedTestIDs trims and de-duplicates the selection, keeping its order.
func selectedTestIDs(selected []string, fallback string) []string {
	if len(selected) == 0 && strings.TrimSpace(fallback) != "" {
		selected = []string{fallback}
	}
	seen := make(map[string]bool, len(selected))
	out := make([]string, 0, len(selected))
	for _, id := range selected {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *DiagnosticService) createAtomic(ctx context.Context, diag *models.Diagnostic, tests []models.DiagnosticTest, appt *models.Appointment) (*DiagnosticCreation, error) {
	err := s.tx.InTx(ctx, func(r Repositories) error {
		if err := r.Diagnostics.Create(ctx, diag); err != nil {
			return err
		}
		for i := range tests {
			tests[i].DiagnosticID = diag.ID
		}
		if err := r.Tests.CreateBatch(ctx, tests); err != nil {
			return err
		}
		appt.DiagnosticID = diag.ID
		return r.Appointments.Create(ctx, appt)
	})
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", diag.PatientID).Int("tests", len(tests)).Msg("diagnostic transaction rolled back")
		return nil, asStorage(err, "failed to create diagnostic record")
	}
	diag.Tests = tests
	return &DiagnosticCreation{Diagnostic: diag, Appointment: appt, TestsAttached: true}, nil
}

func (s *DiagnosticService) createDegradable(ctx context.Context, diag *models.Diagnostic, tests []models.DiagnosticTest, appt *models.Appointment) (*DiagnosticCreation, error) {
	if err := s.repos.Diagnostics.Create(ctx, diag); err != nil {
		s.log.Error().Err(err).Str("patient_id", diag.PatientID).Msg("failed to create diagnostic record")
		return nil, asStorage(err, "failed to create diagnostic record")
	}
	out := &DiagnosticCreation{Diagnostic: diag, TestsAttached: true}

	for i := range tests {
		tests[i].DiagnosticID = diag.ID
	}
	if err := s.repos.Tests.CreateBatch(ctx, tests); err != nil {
		s.degraded("tests")
		s.log.Error().Err(err).Str("diagnostic_id", diag.ID).Int("tests", len(tests)).Msg("diagnostic created without its tests")
		out.TestsAttached = false
		out.Warnings = append(out.Warnings, WarningTestsNotAttached)
		diag.Tests = []models.DiagnosticTest{}
	} else {
		diag.Tests = tests
	}

	appt.DiagnosticID = diag.ID
	if err := s.repos.Appointments.Create(ctx, appt); err != nil {
		s.degraded("appointment")
		s.log.Error().Err(err).Str("diagnostic_id", diag.ID).Msg("diagnostic created without its appointment")
		out.Warnings = append(out.Warnings, WarningAppointmentNotCreated)
	} else {
		out.Appointment = appt
	}
	return out, nil
}

func (s *DiagnosticService) degraded(missing string) {
	if s.metrics != nil {
		s.metrics.DegradedDiagnostics.WithLabelValues(missing).Inc()
	}
}

// Get returns the patient's diagnostic with its tests.
func (s *DiagnosticService) Get(ctx context.Context, patientID, id string) (*models.Diagnostic, error) {
	d, err := s.repos.Diagnostics.GetForPatient(ctx, id, patientID)
	if err != nil {
		return nil, err
	}
	if d.Tests == nil {
		d.Tests = []models.DiagnosticTest{}
	}
	return d, nil
}

// List returns the patient's diagnostics, newest first.
func (s *DiagnosticService) List(ctx context.Context, patientID string) ([]models.Diagnostic, error) {
	list, err := s.repos.Diagnostics.ListByPatient(ctx, patientID)
	if err != nil {
		s.log.Error().Err(err).Str("patient_id", patientID).Msg("failed to list diagnostics")
		return nil, err
	}
	if list == nil {
		list = []models.Diagnostic{}
	}
	for i := range list {
		if list[i].Tests == nil {
			list[i].Tests = []models.DiagnosticTest{}
		}
	}
	return list, nil
}

// StartTest moves a pending test to in_progress.
func (s *DiagnosticService) StartTest(ctx context.Context, testID string) (*models.DiagnosticTest, error) {
	test, err := s.repos.Tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	ok, err := s.repos.Tests.Transition(ctx, testID, []models.TestStatus{models.TestPending}, models.TestInProgress, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, testTransitionError(ctx, s.repos.Tests, testID, models.TestInProgress)
	}
	test.Status = models.TestInProgress

	s.emitTestEvent(ctx, events.TestStarted, test)
	return test, nil
}

// AttachResult completes a pending or in-progress test. When it was the last
// open test of its diagnostic, the diagnostic is completed too. The diagnostic
// row is locked first so concurrent completions of sibling tests see each
// other's writes when counting.
func (s *DiagnosticService) AttachResult(ctx context.Context, testID, resultRef string) (*models.DiagnosticTest, error) {
	resultRef = strings.TrimSpace(resultRef)
	if resultRef == "" {
		return nil, apperrors.Validation("resultRef is required")
	}
	test, err := s.repos.Tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}

	diagnosticDone := false
	err = s.run(ctx, func(r Repositories) error {
		if _, err := r.Diagnostics.LockForUpdate(ctx, test.DiagnosticID); err != nil {
			return err
		}
		ok, err := r.Tests.Transition(ctx, testID,
			[]models.TestStatus{models.TestPending, models.TestInProgress}, models.TestCompleted, &resultRef)
		if err != nil {
			return err
		}
		if !ok {
			return testTransitionError(ctx, r.Tests, testID, models.TestCompleted)
		}
		open, err := r.Tests.CountNotCompleted(ctx, test.DiagnosticID)
		if err != nil {
			return err
		}
		if open == 0 {
			if diagnosticDone, err = r.Diagnostics.UpdateStatus(ctx, test.DiagnosticID, models.DiagnosticScheduled, models.DiagnosticCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	test.Status = models.TestCompleted
	test.ResultRef = &resultRef
	s.log.Info().Str("test_id", testID).Str("diagnostic_id", test.DiagnosticID).Bool("diagnostic_completed", diagnosticDone).Msg("test result attached")

	s.emitTestEvent(ctx, events.TestCompleted, test)
	if diagnosticDone {
		s.emitTestEvent(ctx, events.DiagnosticCompleted, test)
	}
	return test, nil
}

// UploadResult stores a result file and attaches its reference to the test.
func (s *DiagnosticService) UploadResult(ctx context.Context, testID string, obj blobstore.Object) (*models.DiagnosticTest, error) {
	if s.files == nil {
		return nil, apperrors.New(apperrors.KindInternal, "result storage is not configured")
	}
	test, err := s.repos.Tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status == models.TestCompleted {
		return nil, apperrors.InvalidTransition("test %s is already completed", testID)
	}
	diag, err := s.repos.Diagnostics.GetByID(ctx, test.DiagnosticID)
	if err != nil {
		return nil, err
	}

	obj.PatientID = diag.PatientID
	obj.TestID = test.ID
	ref, err := s.files.Put(ctx, obj)
	if err != nil {
		s.log.Error().Err(err).Str("test_id", testID).Msg("failed to store result file")
		return nil, apperrors.Storage(err, "failed to store result file")
	}
	return s.AttachResult(ctx, testID, ref)
}

// ResultURL returns a download link for the result of one of the patient's tests.
// Object-storage references are presigned; other references are returned as is.
func (s *DiagnosticService) ResultURL(ctx context.Context, patientID, testID string) (string, error) {
	test, err := s.repos.Tests.GetByID(ctx, testID)
	if err != nil {
		return "", err
	}
	if _, err := s.repos.Diagnostics.GetForPatient(ctx, test.DiagnosticID, patientID); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return "", apperrors.NotFound("test")
		}
		return "", err
	}
	if test.ResultRef == nil || *test.ResultRef == "" {
		return "", apperrors.NotFound("test result")
	}

	ref := *test.ResultRef
	if !blobstore.IsObjectRef(ref) {
		return ref, nil
	}
	if s.files == nil {
		return "", apperrors.New(apperrors.KindInternal, "result storage is not configured")
	}
	url, err := s.files.PresignURL(ctx, ref)
	if err != nil {
		s.log.Error().Err(err).Str("test_id", testID).Msg("failed to presign result")
		return "", apperrors.Storage(err, "failed to create result link")
	}
	return url, nil
}

// run executes fn in a transaction when atomic writes are enabled.
func (s *DiagnosticService) run(ctx context.Context, fn func(Repositories) error) error {
	if s.atomic && s.tx != nil {
		return s.tx.InTx(ctx, fn)
	}
	return fn(s.repos)
}

func testTransitionError(ctx context.Context, tests TestRepository, testID string, to models.TestStatus) error {
	current, err := tests.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	return apperrors.InvalidTransition("test cannot move from %s to %s", current.Status, to)
}

func (s *DiagnosticService) emitTestEvent(ctx context.Context, typ string, test *models.DiagnosticTest) {
	evt := events.Event{Type: typ, EntityID: test.ID, OccurredAt: time.Now().UTC(), Data: map[string]any{"diagnosticId": test.DiagnosticID}}
	if typ == events.DiagnosticCompleted {
		evt.EntityID = test.DiagnosticID
	}
	if d, err := s.repos.Diagnostics.GetByID(ctx, test.DiagnosticID); err == nil {
		evt.PatientID = d.PatientID
	}
	s.events.emit(ctx, evt)
}

// asStorage keeps typed errors and wraps anything else as a storage failure.
func asStorage(err error, msg string) error {
	if apperrors.Is(err, apperrors.KindStorage) || apperrors.KindOf(err) == apperrors.KindInternal {
		return apperrors.Storage(err, "%s", msg)
	}
	return err
}
