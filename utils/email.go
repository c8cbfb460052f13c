package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	senderName  = "Virtual Try-On"
	senderEmail = "no-reply@tryonfusion.com"
)

// mailSender is the part of the SendGrid client the mailer uses.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer sends transactional email through SendGrid.
type Mailer struct {
	client mailSender
	logger *zap.Logger
}

// NewMailer creates a Mailer. An empty apiKey yields a nil Mailer, which
// drops every message.
func NewMailer(apiKey string, logger *zap.Logger) *Mailer {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{client: sendgrid.NewSendClient(apiKey), logger: logger.Named("mailer")}
}

// SendEmail sends an email using SendGrid
func (m *Mailer) SendEmail(ctx context.Context, toName, toEmail, subject, textContent, htmlContent string) error {
	if m == nil {
		return fmt.Errorf("SENDGRID_API_KEY is not set in environment variables")
	}

	from := mail.NewEmail(senderName, senderEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, textContent, htmlContent)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		m.logger.Error("Error sending email", zap.String("to", toEmail), zap.Error(err))
		return err
	}
	if response.StatusCode >= 400 {
		m.logger.Error("SendGrid API error", zap.Int("status", response.StatusCode), zap.String("body", response.Body))
		return fmt.Errorf("failed to send email, status code: %d", response.StatusCode)
	}

	m.logger.Info("Email sent", zap.String("to", toEmail), zap.Int("status", response.StatusCode))
	return nil
}

// FailureReport describes a failed try-on run for the operator.
type FailureReport struct {
	RunID   string
	UserID  string
	Subject string
	Garment string
	Error   string
}

// SendFailureReport emails report to the operator.
func (m *Mailer) SendFailureReport(ctx context.Context, operatorEmail string, report FailureReport) error {
	subject := fmt.Sprintf("Try-on run %s failed", report.RunID)

	var text strings.Builder
	fmt.Fprintf(&text, "Run: %s\n", report.RunID)
	fmt.Fprintf(&text, "User: %s\n", report.UserID)
	fmt.Fprintf(&text, "Subject image: %s\n", report.Subject)
	fmt.Fprintf(&text, "Garment image: %s\n", report.Garment)
	fmt.Fprintf(&text, "Error: %s\n", report.Error)

	html := strings.ReplaceAll(text.String(), "\n", "<br>")
	return m.SendEmail(ctx, "Operator", operatorEmail, subject, text.String(), html)
}
