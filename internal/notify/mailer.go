// Package notify sends appointment notifications to patients.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"curanova-server/internal/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers a message and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer delivers through the Resend API.
type ResendMailer struct {
	emails  emailSender
	from    string
	timeout time.Duration
}

func NewResendMailer(cfg config.MailerConfig) *ResendMailer {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &ResendMailer{emails: client.Emails, from: cfg.DefaultFrom, timeout: cfg.Timeout}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) (string, error) {
	from := msg.From
	if from == "" {
		from = m.from
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return resp.Id, nil
}

// LogMailer writes messages to the log instead of sending them. Used in development.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "log_mailer").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	m.log.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("email not sent, log transport active")
	return "log", nil
}

// NewMailer picks the transport named in cfg.
func NewMailer(cfg config.MailerConfig, log zerolog.Logger) (Mailer, error) {
	switch cfg.Transport {
	case "resend":
		return NewResendMailer(cfg), nil
	case "log", "":
		return NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unknown mailer transport %q", cfg.Transport)
	}
}
