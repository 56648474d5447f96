package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/couchcryptid/air-quality-sentinel/internal/config"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// SMTPEmailer sends one plaintext digest per cycle over SMTP with STARTTLS.
type SMTPEmailer struct {
	host     string
	port     int
	user     string
	password string
	to       string
	logger   *slog.Logger

	// send is swapped in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailer returns nil when the config lacks credentials or a
// recipient, which disables email for the whole process.
func NewSMTPEmailer(cfg *config.Config, logger *slog.Logger) *SMTPEmailer {
	if !cfg.SMTPConfigured() {
		logger.Info("email digests disabled, smtp not configured")
		return nil
	}
	return &SMTPEmailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		to:       cfg.AlertEmailTo,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

// SendDigest emails a single plaintext summary of the cycle's alerts.
func (e *SMTPEmailer) SendDigest(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	auth := smtp.PlainAuth("", e.user, e.password, e.host)
	msg := digestBody(e.user, e.to, alerts)

	if err := e.send(addr, auth, e.user, []string{e.to}, msg); err != nil {
		return fmt.Errorf("send alert digest: %w", err)
	}
	e.logger.Info("alert digest sent", "alerts", len(alerts), "to", e.to)
	return nil
}

func digestBody(from, to string, alerts []domain.Alert) []byte {
	maxSeverity := alerts[0].Severity
	for _, a := range alerts[1:] {
		if a.Severity > maxSeverity {
			maxSeverity = a.Severity
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Air quality digest: %d alert(s), max severity %s\r\n", len(alerts), maxSeverity)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "%d new air quality alert(s):\r\n\r\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "[%s] %s\r\n", strings.ToUpper(a.Severity.String()), a.Message)
		fmt.Fprintf(&b, "  location:  %s\r\n", a.LocationID)
		fmt.Fprintf(&b, "  pollutant: %s\r\n", a.Pollutant)
		fmt.Fprintf(&b, "  value:     %.2f (threshold %.2f)\r\n", a.Value, a.Threshold)
		fmt.Fprintf(&b, "  observed:  %s\r\n\r\n", a.Timestamp.Format("2006-01-02 15:04 MST"))
	}
	return []byte(b.String())
}
