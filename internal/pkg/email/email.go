package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const maxRetries = 3

// EmailService sends the approval workflow emails
type EmailService interface {
	SendApprovalRequested(ctx context.Context, to string, data ApprovalRequestedData) error
	SendApprovalDecided(ctx context.Context, to string, data ApprovalDecidedData) error
	SendPendingDigest(ctx context.Context, to string, data PendingDigestData) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type emailServiceImpl struct {
	cfg       config.SMTPConfig
	templates *template.Template
	send      sendFunc
	backoff   time.Duration
}

// NewEmailService creates a new email service instance
func NewEmailService(cfg config.SMTPConfig) (EmailService, error) {
	return newEmailService(cfg, smtp.SendMail, time.Second)
}

func newEmailService(cfg config.SMTPConfig, send sendFunc, backoff time.Duration) (*emailServiceImpl, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &emailServiceImpl{
		cfg:       cfg,
		templates: tmpl,
		send:      send,
		backoff:   backoff,
	}, nil
}

type ApprovalRequestedData struct {
	AdminName      string
	EmployeeName   string
	Kind           string
	Date           string
	SubmittedAt    string
	Address        string
	DistanceMeters int
	SiteName       string
	ReviewLink     string
}

// SendApprovalRequested tells an admin that a submission outside the geofence awaits review
func (s *emailServiceImpl) SendApprovalRequested(ctx context.Context, to string, data ApprovalRequestedData) error {
	subject := fmt.Sprintf("Attendance approval needed: %s (%s %s)", data.EmployeeName, data.Kind, data.Date)
	return s.render(ctx, to, subject, "approval_requested.html", data)
}

type ApprovalDecidedData struct {
	EmployeeName string
	Kind         string
	Date         string
	State        string
	Remarks      string
	Status       string
}

// SendApprovalDecided tells the employee how their submission was decided
func (s *emailServiceImpl) SendApprovalDecided(ctx context.Context, to string, data ApprovalDecidedData) error {
	subject := fmt.Sprintf("Your %s attendance for %s was %s", data.Kind, data.Date, data.State)
	return s.render(ctx, to, subject, "approval_decided.html", data)
}

type PendingDigestItem struct {
	EmployeeName string
	Kind         string
	Date         string
	Age          string
}

type PendingDigestData struct {
	AdminName string
	Items     []PendingDigestItem
}

// SendPendingDigest lists approval requests that have waited too long
func (s *emailServiceImpl) SendPendingDigest(ctx context.Context, to string, data PendingDigestData) error {
	subject := fmt.Sprintf("%d attendance approvals are waiting", len(data.Items))
	return s.render(ctx, to, subject, "pending_digest.html", data)
}

func (s *emailServiceImpl) render(ctx context.Context, to, subject, name string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return s.sendHTML(ctx, to, subject, body.String())
}

func (s *emailServiceImpl) sendHTML(ctx context.Context, to, subject, htmlBody string) error {
	// Skip sending if SMTP is not configured
	if s.cfg.Host == "" {
		slog.Warn("SMTP not configured, skipping email send", "to", to, "subject", subject)
		return nil
	}

	from := s.cfg.From

	headers := fmt.Sprintf("From: %s <%s>\r\n", s.cfg.FromName, from)
	headers += fmt.Sprintf("To: %s\r\n", to)
	headers += fmt.Sprintf("Subject: %s\r\n", subject)
	headers += "MIME-Version: 1.0\r\n"
	headers += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	headers += "\r\n"

	message := []byte(headers + htmlBody)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.send(addr, auth, from, []string{to}, message)
		if err == nil {
			slog.Info("Email sent successfully", "to", to, "subject", subject, "attempt", attempt)
			return nil
		}

		lastErr = err
		slog.Error("Failed to send email",
			"to", to,
			"subject", subject,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		// Exponential backoff: 1x, 2x, 4x
		if attempt < maxRetries {
			select {
			case <-time.After(s.backoff << (attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("email send cancelled after %d attempts: %w", attempt, ctx.Err())
			}
		}
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}
