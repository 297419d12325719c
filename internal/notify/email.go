package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/salesfusion/pkg/logging"
)

// DefaultFromName is used when no sender name is configured.
const DefaultFromName = "SalesFusion"

// EmailSender delivers handoff e-mails to the sales team.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	htmlBody := msg.HTML
	if htmlBody == "" {
		htmlBody = msg.Body
	}

	response, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(from, msg.Subject, to, msg.Body, htmlBody))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// RecordingEmailSender logs instead of sending and keeps what it was given.
// Used when e-mail is disabled and in tests.
type RecordingEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

// NewRecordingEmailSender creates a sender that never leaves the process.
func NewRecordingEmailSender(logger *logging.Logger) *RecordingEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecordingEmailSender{logger: logger}
}

// Send records msg.
func (s *RecordingEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("email sender disabled: recorded email", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Sent returns a copy of the recorded messages.
func (s *RecordingEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.sent...)
}

// BuildHandoffEmail composes the message sent when a prospect becomes ready
// to talk to sales.
func BuildHandoffEmail(to string, alert LeadAlert, transcript string) EmailMessage {
	name := alert.ProspectName
	if name == "" {
		name = "A prospect"
	}
	company := alert.Company
	if company == "" {
		company = "unknown company"
	}
	criteria := "none"
	if len(alert.QualifiedCriteria) > 0 {
		criteria = strings.Join(alert.QualifiedCriteria, ", ")
	}

	subject := fmt.Sprintf("Ready to connect: %s (%s) - score %d", name, company, alert.Score)
	body := fmt.Sprintf(`%s from %s is ready to talk to sales.

Email: %s
Score: %d (%+d)
Qualified: %s
Session: %s

Transcript:
%s`, name, company, orNone(alert.Email), alert.Score, alert.Delta(), criteria, alert.SessionID, transcript)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Ready to connect</h2>
<p><strong>%s</strong> from <strong>%s</strong> is ready to talk to sales.</p>
<ul>
  <li><strong>Email:</strong> %s</li>
  <li><strong>Score:</strong> %d (%+d)</li>
  <li><strong>Qualified:</strong> %s</li>
  <li><strong>Session:</strong> %s</li>
</ul>
<pre style="white-space: pre-wrap;">%s</pre>
</div>`,
		html.EscapeString(name), html.EscapeString(company), html.EscapeString(orNone(alert.Email)),
		alert.Score, alert.Delta(), html.EscapeString(criteria), html.EscapeString(alert.SessionID),
		html.EscapeString(transcript))

	return EmailMessage{To: to, Subject: subject, Body: body, HTML: htmlBody}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not provided"
	}
	return s
}
