package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"curanova-server/internal/apperrors"
	"curanova-server/internal/events"
	"curanova-server/internal/metrics"
	"curanova-server/internal/models"
)

// DefaultBookingLead is how far ahead a booking without a preferred date lands.
const DefaultBookingLead = 7 * 24 * time.Hour

// Notifier sends the appointment confirmation. diag may be nil.
type Notifier interface {
	SendAppointmentConfirmation(ctx context.Context, to string, appt *models.Appointment, diag *models.Diagnostic) error
}

// BookInput requests a stand-alone appointment for an existing diagnostic.
type BookInput struct {
	PatientID     string
	DiagnosticID  string
	PreferredDate string
	PreferredTime string
}

// UpdateInput is a patient-initiated status change.
type UpdateInput struct {
	PatientID     string
	AppointmentID string
	Status        string
	NotifyEmail   string
}

// UpdateResult reports the appointment after the change and whether the
// confirmation email went out.
type UpdateResult struct {
	Appointment      *models.Appointment `json:"appointment"`
	NotificationSent bool                `json:"notificationSent"`
}

// AppointmentService enforces the appointment state machine.
type AppointmentService struct {
	appointments AppointmentRepository
	diagnostics  DiagnosticRepository
	notifier     Notifier
	metrics      *metrics.Workflow
	events       emitter
	log          zerolog.Logger
	now          func() time.Time
}

func NewAppointmentService(repos Repositories, notifier Notifier, pub events.Publisher, m *metrics.Workflow, log zerolog.Logger) *AppointmentService {
	log = log.With().Str("component", "appointments").Logger()
	return &AppointmentService{
		appointments: repos.Appointments,
		diagnostics:  repos.Diagnostics,
		notifier:     notifier,
		metrics:      m,
		events:       emitter{pub: pub, metrics: m, log: log},
		log:          log,
		now:          time.Now,
	}
}

// Book creates a scheduled appointment for one of the patient's diagnostics.
func (s *AppointmentService) Book(ctx context.Context, in BookInput) (*models.Appointment, error) {
	if strings.TrimSpace(in.DiagnosticID) == "" {
		return nil, apperrors.Validation("missing required fields: diagnosticId")
	}
	diag, err := s.diagnostics.GetForPatient(ctx, in.DiagnosticID, in.PatientID)
	if err != nil {
		return nil, err
	}
	if diag.Status != models.DiagnosticScheduled {
		return nil, apperrors.InvalidTransition("cannot book an appointment for a %s diagnostic", diag.Status)
	}

	date := s.now().UTC().Add(DefaultBookingLead)
	if strings.TrimSpace(in.PreferredDate) != "" {
		var err error
		if date, err = parseDate("preferredDate", in.PreferredDate); err != nil {
			return nil, err
		}
	}
	slot := strings.TrimSpace(in.PreferredTime)
	if slot == "" {
		slot = models.DefaultTimeSlot
	}

	appt := &models.Appointment{
		PatientID:       in.PatientID,
		DiagnosticID:    in.DiagnosticID,
		AppointmentDate: date,
		AppointmentTime: slot,
		Status:          models.StatusScheduled,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		s.log.Error().Err(err).Str("diagnostic_id", in.DiagnosticID).Msg("failed to create appointment")
		return nil, err
	}
	s.events.emit(ctx, events.Event{Type: events.AppointmentBooked, PatientID: appt.PatientID, EntityID: appt.ID})
	return appt, nil
}

// List returns the patient's appointments.
func (s *AppointmentService) List(ctx context.Context, patientID string) ([]models.Appointment, error) {
	list, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Appointment{}
	}
	return list, nil
}

// Update applies a patient status change. Confirming dispatches the
// confirmation email; a failed email is logged and counted but the
// appointment stays confirmed. Repeating the current confirmed or cancelled
// status is a no-op.
func (s *AppointmentService) Update(ctx context.Context, in UpdateInput) (*UpdateResult, error) {
	var missing []string
	if strings.TrimSpace(in.AppointmentID) == "" {
		missing = append(missing, "appointmentId")
	}
	if strings.TrimSpace(in.Status) == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, apperrors.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	target := models.AppointmentStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	switch target {
	case models.StatusConfirmed:
		if strings.TrimSpace(in.NotifyEmail) == "" {
			return nil, apperrors.Validation("notifyEmail is required to confirm an appointment")
		}
	case models.StatusCancelled:
	case models.StatusScheduled, models.StatusCompleted:
		return nil, apperrors.InvalidTransition("patients cannot move an appointment to %s", target)
	default:
		return nil, apperrors.Validation("unknown appointment status %q", in.Status)
	}

	appt, err := s.appointments.GetByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != in.PatientID {
		return nil, apperrors.NotFound("appointment")
	}
	if appt.Status == target {
		return &UpdateResult{Appointment: appt}, nil
	}
	if err := s.checkTransition(appt, target); err != nil {
		return nil, err
	}

	changed, err := s.transition(ctx, appt, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &UpdateResult{Appointment: appt}, nil
	}

	result := &UpdateResult{Appointment: appt}
	if target == models.StatusConfirmed {
		result.NotificationSent = s.notify(ctx, strings.TrimSpace(in.NotifyEmail), appt)
	}

	evtType := events.AppointmentCancelled
	if target == models.StatusConfirmed {
		evtType = events.AppointmentConfirmed
	}
	s.events.emit(ctx, events.Event{
		Type:      evtType,
		PatientID: appt.PatientID,
		EntityID:  appt.ID,
		Data:      map[string]any{"notificationSent": result.NotificationSent},
	})
	return result, nil
}

// Complete is the provider-side transition from scheduled or confirmed to completed.
func (s *AppointmentService) Complete(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(appt, models.StatusCompleted); err != nil {
		return nil, err
	}
	changed, err := s.transition(ctx, appt, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperrors.InvalidTransition("appointment is already %s", appt.Status)
	}
	s.events.emit(ctx, events.Event{Type: events.AppointmentCompleted, PatientID: appt.PatientID, EntityID: appt.ID})
	return appt, nil
}

func (s *AppointmentService) checkTransition(appt *models.Appointment, to models.AppointmentStatus) error {
	from := appt.Status
	switch {
	case from == models.StatusScheduled && to == models.StatusConfirmed:
		return nil
	case from == models.StatusScheduled && to == models.StatusCancelled:
		if !s.now().Before(appt.AppointmentDate) {
			return apperrors.InvalidTransition("appointment date has passed and can no longer be cancelled")
		}
		return nil
	case from == models.StatusConfirmed && to == models.StatusCancelled:
		return nil
	case (from == models.StatusScheduled || from == models.StatusConfirmed) && to == models.StatusCompleted:
		return nil
	}
	return apperrors.InvalidTransition("appointment cannot move from %s to %s", from, to)
}

// transition writes the new status conditionally on the status that was read.
// It reports false when a concurrent request already moved the appointment
// to the same target, and fails when it moved somewhere else.
func (s *AppointmentService) transition(ctx context.Context, appt *models.Appointment, to models.AppointmentStatus) (bool, error) {
	from := appt.Status
	var confirmedAt *time.Time
	if to == models.StatusConfirmed {
		now := s.now().UTC()
		confirmedAt = &now
	}

	ok, err := s.appointments.UpdateStatus(ctx, appt.ID, from, to, confirmedAt)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID).Str("from", string(from)).Str("to", string(to)).Msg("failed to update appointment status")
		return false, err
	}
	if !ok {
		current, err := s.appointments.GetByID(ctx, appt.ID)
		if err != nil {
			return false, err
		}
		*appt = *current
		if current.Status == to && to != models.StatusCompleted {
			return false, nil
		}
		return false, apperrors.InvalidTransition("appointment cannot move from %s to %s", current.Status, to)
	}

	appt.Status = to
	if confirmedAt != nil {
		appt.ConfirmedAt = confirmedAt
	}
	if s.metrics != nil {
		s.metrics.AppointmentChanges.WithLabelValues(string(to)).Inc()
	}
	s.log.Info().Str("appointment_id", appt.ID).Str("from", string(from)).Str("to", string(to)).Msg("appointment status changed")
	return true, nil
}

func (s *AppointmentService) notify(ctx context.Context, to string, appt *models.Appointment) bool {
	if s.notifier == nil {
		return false
	}
	diag, err := s.diagnostics.GetByID(ctx, appt.DiagnosticID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appt.ID).Msg("confirmation email sent without diagnostic details")
		diag = nil
	}

	if err := s.notifier.SendAppointmentConfirmation(ctx, to, appt, diag); err != nil {
		if s.metrics != nil {
			s.metrics.NotificationFailures.Inc()
		}
		s.log.Error().Err(err).Str("appointment_id", appt.ID).Str("patient_id", appt.PatientID).Msg("appointment confirmed but confirmation email failed")
		return false
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}
	return true
}
