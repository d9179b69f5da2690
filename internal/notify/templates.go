package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Confirmation holds the values shown in an appointment confirmation email.
type Confirmation struct {
	AppointmentID string
	Date          time.Time
	Time          string
	Hospital      string
	Symptom       string
	AISummary     string
	TestName      string
}

// DisplayDate formats the date as "Monday, January 2, 2006".
func (c Confirmation) DisplayDate() string {
	return c.Date.Format("Monday, January 2, 2006")
}

const confirmationHTML = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Appointment Confirmation - CuraNova</title>
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
      .header { background-color: #2563eb; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
      .content { background-color: #f8fafc; padding: 30px; border: 1px solid #e2e8f0; }
      .details { background-color: white; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #10b981; }
      .diagnostic { background-color: white; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #f59e0b; }
      .footer { background-color: #1f2937; color: white; padding: 20px; text-align: center; border-radius: 0 0 8px 8px; }
      .status { display: inline-block; background-color: #10b981; color: white; padding: 6px 12px; border-radius: 20px; font-size: 14px; font-weight: bold; }
    </style>
  </head>
  <body>
    <div class="header">
      <h1>CuraNova</h1>
      <p>Your Healthcare Companion</p>
    </div>
    <div class="content">
      <h2>Appointment Confirmed!</h2>
      <p>Dear Patient,</p>
      <p>Your appointment has been successfully confirmed. We look forward to providing you with excellent healthcare service.</p>
      <div class="details">
        <h3>Appointment Details</h3>
        <p><strong>Date:</strong> {{.DisplayDate}}</p>
        <p><strong>Time:</strong> {{.Time}}</p>
        <p><strong>Status:</strong> <span class="status">Confirmed</span></p>
        {{- if .Hospital}}
        <p><strong>Location:</strong> {{.Hospital}}</p>
        {{- end}}
        <p><strong>Appointment ID:</strong> {{.AppointmentID}}</p>
      </div>
      {{- if or .Symptom .TestName .AISummary}}
      <div class="diagnostic">
        <h3>Diagnostic Information</h3>
        {{- if .Symptom}}
        <p><strong>Symptoms:</strong> {{.Symptom}}</p>
        {{- end}}
        {{- if .TestName}}
        <p><strong>Recommended Test:</strong> {{.TestName}}</p>
        {{- end}}
        {{- if .AISummary}}
        <p><strong>AI Analysis Summary:</strong></p>
        <div style="background-color: #f3f4f6; padding: 15px; border-radius: 6px; margin: 10px 0;">{{.AISummary}}</div>
        {{- end}}
      </div>
      {{- end}}
      <h3>What to Expect</h3>
      <ul>
        <li>Please arrive <strong>15 minutes early</strong> for check-in</li>
        <li>Bring a valid photo ID and insurance card</li>
        <li>Wear comfortable clothing</li>
        <li>If you need to reschedule, please contact us at least 24 hours in advance</li>
      </ul>
      <h3>Need Help?</h3>
      <p>If you have any questions or need to make changes to your appointment, please contact us:</p>
      <ul>
        <li><strong>Phone:</strong> (555) 123-CURA</li>
        <li><strong>Email:</strong> appointments@curanova.com</li>
      </ul>
    </div>
    <div class="footer">
      <p><strong>CuraNova Healthcare</strong></p>
      <p>Revolutionizing Healthcare with AI-Powered Diagnostics</p>
      <p style="font-size: 12px; margin-top: 15px;">This is an automated confirmation email. Please do not reply to this email.</p>
    </div>
  </body>
</html>
`

const confirmationText = `CuraNova - Appointment Confirmation

Your appointment has been confirmed!

Date: {{.DisplayDate}}
Time: {{.Time}}
Status: Confirmed
Appointment ID: {{.AppointmentID}}
{{- if .Hospital}}
Location: {{.Hospital}}
{{- end}}
{{- if .Symptom}}

Symptoms: {{.Symptom}}
{{- end}}

Please arrive 15 minutes early for check-in.

Need help? Contact us at (555) 123-CURA or appointments@curanova.com

CuraNova Healthcare - Revolutionizing Healthcare with AI
`

var (
	confirmationHTMLTmpl = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(confirmationHTML))
	confirmationTextTmpl = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(confirmationText))
)

// RenderConfirmation builds the subject and both bodies of a confirmation email.
func RenderConfirmation(c Confirmation) (Message, error) {
	var html, text bytes.Buffer
	if err := confirmationHTMLTmpl.Execute(&html, c); err != nil {
		return Message{}, err
	}
	if err := confirmationTextTmpl.Execute(&text, c); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: "Appointment Confirmed - " + c.DisplayDate() + " at " + strings.TrimSpace(c.Time),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
