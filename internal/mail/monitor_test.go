package mail

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/logger"
	"sfex/internal/vendors"
	"sfex/pkg/models"
)

type fakeMailbox struct {
	messages []InboundMessage
	err      error
}

func (f *fakeMailbox) UnseenMessages(_ context.Context) ([]InboundMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fakeProducer struct {
	published []publishedMessage
}

type publishedMessage struct {
	queue         string
	body          []byte
	correlationID string
}

func (f *fakeProducer) Publish(_ context.Context, queue string, body []byte, correlationID string) error {
	f.published = append(f.published, publishedMessage{queue: queue, body: body, correlationID: correlationID})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func newTestMonitor(t *testing.T, mailbox Mailbox, producer *fakeProducer) *Monitor {
	t.Helper()
	store, err := vendors.NewStore([]vendors.Profile{{
		ID: "acme",
		Notification: vendors.NotificationSettings{
			Emails: []string{"Ops@Acme.example"},
		},
	}})
	require.NoError(t, err)
	return NewMonitor(mailbox, store, producer, 60, logger.NopLogger())
}

func TestMonitorPublishesIssueReports(t *testing.T) {
	receivedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mailbox := &fakeMailbox{messages: []InboundMessage{
		{From: "ops@acme.example", Subject: "Missing file for March", ReceivedAt: receivedAt},
	}}
	producer := &fakeProducer{}
	monitor := newTestMonitor(t, mailbox, producer)

	monitor.poll(context.Background())
	require.Len(t, producer.published, 1)

	msg := producer.published[0]
	assert.Equal(t, "issue.reported", msg.queue)

	var report models.IssueReport
	require.NoError(t, json.Unmarshal(msg.body, &report))
	assert.Equal(t, "acme", report.VendorID)
	assert.Equal(t, "Missing file for March", report.EmailSubject)
	assert.Equal(t, receivedAt, report.ReceivedAt)
	assert.Equal(t, msg.correlationID, report.CorrelationID)
}

func TestMonitorAttributesUnknownSender(t *testing.T) {
	mailbox := &fakeMailbox{messages: []InboundMessage{
		{From: "someone@else.example", Subject: "hello"},
	}}
	producer := &fakeProducer{}
	monitor := newTestMonitor(t, mailbox, producer)

	monitor.poll(context.Background())
	require.Len(t, producer.published, 1)

	var report models.IssueReport
	require.NoError(t, json.Unmarshal(producer.published[0].body, &report))
	assert.Equal(t, "unknown", report.VendorID)
}

func TestMonitorExtractsFileIDFromSubject(t *testing.T) {
	mailbox := &fakeMailbox{messages: []InboundMessage{
		{From: "ops@acme.example", Subject: "Re: Discrepancies in file 6F9619FF-8B86-D011-B42D-00CF4FC964FF"},
		{From: "ops@acme.example", Subject: "general question"},
	}}
	producer := &fakeProducer{}
	monitor := newTestMonitor(t, mailbox, producer)

	monitor.poll(context.Background())
	require.Len(t, producer.published, 2)

	var report models.IssueReport
	require.NoError(t, json.Unmarshal(producer.published[0].body, &report))
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", report.FileID)

	require.NoError(t, json.Unmarshal(producer.published[1].body, &report))
	assert.Empty(t, report.FileID)
}

func TestMonitorSurvivesMailboxFailure(t *testing.T) {
	producer := &fakeProducer{}
	monitor := newTestMonitor(t, &fakeMailbox{err: errors.New("imap down")}, producer)

	monitor.poll(context.Background())
	assert.Empty(t, producer.published)
}

func TestRenderReport(t *testing.T) {
	sender, err := NewSMTPSender(testMailConfig(), logger.NopLogger())
	require.NoError(t, err)

	body, err := sender.renderReport(models.DiscrepancyNotification{
		VendorID:      "acme",
		FileID:        "f-1",
		CorrelationID: "c-1",
		Discrepancies: []models.Discrepancy{
			{
				RecordID:    "record_0",
				FieldName:   "Amount",
				RuleKind:    "range",
				Expected:    "number within [0, 1000]",
				Actual:      "5000",
				Description: "field Amount is out of range",
			},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Vendor: acme")
	assert.Contains(t, body, "record_0")
	assert.Contains(t, body, "field Amount is out of range")
}
