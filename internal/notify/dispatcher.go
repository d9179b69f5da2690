package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"curanova-server/internal/models"
)

// Dispatcher renders and sends appointment notifications.
type Dispatcher struct {
	mailer Mailer
	log    zerolog.Logger
}

func NewDispatcher(mailer Mailer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, log: log.With().Str("component", "notification_dispatcher").Logger()}
}

// SendAppointmentConfirmation emails the confirmation for appt to the given address.
// diag may be nil, in which case the diagnostic section is omitted.
func (d *Dispatcher) SendAppointmentConfirmation(ctx context.Context, to string, appt *models.Appointment, diag *models.Diagnostic) error {
	c := Confirmation{
		AppointmentID: appt.ID,
		Date:          appt.AppointmentDate,
		Time:          appt.AppointmentTime,
	}
	if diag != nil {
		c.Hospital = diag.Hospital
		c.Symptom = diag.Symptom
		c.AISummary = diag.AISummary
		c.TestName = diag.TestName
	}

	msg, err := RenderConfirmation(c)
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	msg.To = []string{to}

	id, err := d.mailer.Send(ctx, msg)
	if err != nil {
		return err
	}
	d.log.Info().Str("appointment_id", appt.ID).Str("message_id", id).Msg("confirmation email sent")
	return nil
}
