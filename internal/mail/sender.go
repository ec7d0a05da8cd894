package mail

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	gomail "github.com/wneessen/go-mail"

	"sfex/internal/config"
	"sfex/internal/logger"
	"sfex/pkg/metrics"
	"sfex/pkg/models"
)

// Sender delivers discrepancy reports to a vendor's contacts.
type Sender interface {
	SendDiscrepancyReport(ctx context.Context, recipients []string, subject string, notification models.DiscrepancyNotification) error
}

const reportTemplate = `Vendor: {{.VendorID}}
File: {{.FileID}}
Correlation: {{.CorrelationID}}
Discrepancies: {{len .Discrepancies}}

{{range .Discrepancies -}}
- [{{.RecordID}}] field {{.FieldName}} ({{.RuleKind}}): expected {{.Expected}}, got {{.Actual}}
  {{.Description}}
{{end}}`

type SMTPSender struct {
	cfg    config.MailConfig
	tmpl   *template.Template
	logger logger.Logger
}

func NewSMTPSender(cfg config.MailConfig, log logger.Logger) (*SMTPSender, error) {
	tmpl, err := template.New("discrepancy_report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &SMTPSender{cfg: cfg, tmpl: tmpl, logger: log}, nil
}

func (s *SMTPSender) SendDiscrepancyReport(ctx context.Context, recipients []string, subject string, notification models.DiscrepancyNotification) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured for vendor %s", notification.VendorID)
	}

	body, err := s.renderReport(notification)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.FromAddress); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := s.newClient()
	if err != nil {
		return err
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(notification.VendorID, "error").Inc()
		return fmt.Errorf("failed to send discrepancy report: %w", err)
	}

	metrics.NotificationsSentTotal.WithLabelValues(notification.VendorID, "success").Inc()
	s.logger.InfowCtx(ctx, "Discrepancy report sent",
		"vendor_id", notification.VendorID,
		"file_id", notification.FileID,
		"recipients", len(recipients),
		"discrepancies", len(notification.Discrepancies),
	)
	return nil
}

func (s *SMTPSender) newClient() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.SMTPPort),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.UseStartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	client, err := gomail.NewClient(s.cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

func (s *SMTPSender) renderReport(notification models.DiscrepancyNotification) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, notification); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
