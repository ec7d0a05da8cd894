package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"sfex/internal/broker"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/internal/vendors"
	"sfex/pkg/metrics"
	"sfex/pkg/models"
)

// Monitor polls the support mailbox for vendor-reported issues and
// publishes each one as an event. Triage happens downstream; the
// monitor only attributes the mail to a vendor.
type Monitor struct {
	mailbox  Mailbox
	store    *vendors.Store
	producer broker.Producer
	interval time.Duration
	logger   logger.Logger
}

func NewMonitor(mailbox Mailbox, store *vendors.Store, producer broker.Producer, pollIntervalSeconds int, log logger.Logger) *Monitor {
	if pollIntervalSeconds <= 0 {
		pollIntervalSeconds = constants.DefaultIssuePollIntervalSeconds
	}
	return &Monitor{
		mailbox:  mailbox,
		store:    store,
		producer: producer,
		interval: time.Duration(pollIntervalSeconds) * time.Second,
		logger:   log,
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfowCtx(ctx, "Issue monitor started",
		"poll_interval", m.interval,
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.InfowCtx(ctx, "Issue monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	messages, err := m.mailbox.UnseenMessages(ctx)
	if err != nil {
		m.logger.ErrorwCtx(ctx, "Failed to poll mailbox",
			"error", err,
		)
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if err := m.publishIssue(ctx, msg); err != nil {
			m.logger.ErrorwCtx(ctx, "Failed to publish issue report",
				"from", msg.From,
				"subject", msg.Subject,
				"error", err,
			)
		}
	}
}

func (m *Monitor) publishIssue(ctx context.Context, msg InboundMessage) error {
	vendorID := m.resolveVendor(msg.From)
	correlationID := uuid.New().String()

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	report := models.IssueReport{
		VendorID:      vendorID,
		FileID:        extractFileID(msg.Subject),
		Description:   fmt.Sprintf("mail from %s: %s", msg.From, msg.Subject),
		EmailSubject:  msg.Subject,
		CorrelationID: correlationID,
		ReceivedAt:    receivedAt,
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal issue report: %w", err)
	}

	if err := m.producer.Publish(ctx, constants.QueueIssueReported, body, correlationID); err != nil {
		return err
	}

	metrics.IssueReportsTotal.WithLabelValues(vendorID).Inc()
	m.logger.InfowCtx(ctx, "Issue report published",
		"vendor_id", vendorID,
		"subject", msg.Subject,
		"correlation_id", correlationID,
	)
	return nil
}

var fileIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// extractFileID pulls a file id out of the subject line when the
// vendor quoted one, typically from a discrepancy notification.
func extractFileID(subject string) string {
	return strings.ToLower(fileIDPattern.FindString(subject))
}

// resolveVendor attributes a sender address to a vendor by its
// registered notification contacts. Unattributed mail still flows, as
// vendor "unknown", so nothing reported is silently dropped.
func (m *Monitor) resolveVendor(from string) string {
	from = strings.ToLower(from)
	for _, profile := range m.store.All() {
		for _, email := range profile.Notification.Emails {
			if strings.ToLower(email) == from {
				return profile.ID
			}
		}
	}
	return "unknown"
}
