package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/archive"
	"sfex/internal/broker"
	"sfex/internal/config"
	"sfex/internal/logger"
	"sfex/internal/parser"
	"sfex/internal/rules"
	"sfex/internal/vendors"
	"sfex/pkg/models"
)

type fakeProducer struct {
	published  []publishedMessage
	publishErr error
}

type publishedMessage struct {
	queue         string
	body          []byte
	correlationID string
}

func (f *fakeProducer) Publish(_ context.Context, queue string, body []byte, correlationID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{queue: queue, body: body, correlationID: correlationID})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeArchiver struct {
	saved   []archive.ArchivedFile
	saveErr error
}

func (f *fakeArchiver) Save(_ context.Context, file archive.ArchivedFile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, file)
	return nil
}

func (f *fakeArchiver) Get(_ context.Context, fileID string) (*archive.ArchivedFile, error) {
	for i := range f.saved {
		if f.saved[i].FileID == fileID {
			return &f.saved[i], nil
		}
	}
	return nil, nil
}

func (f *fakeArchiver) CountByVendor(_ context.Context, _ string) (int64, error) {
	return int64(len(f.saved)), nil
}

type fakeGuard struct {
	claims map[string]bool
	err    error
}

func (f *fakeGuard) Claim(_ context.Context, correlationID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claims == nil {
		f.claims = make(map[string]bool)
	}
	if f.claims[correlationID] {
		return false, nil
	}
	f.claims[correlationID] = true
	return true, nil
}

func (f *fakeGuard) Release(_ context.Context, correlationID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.claims, correlationID)
	return nil
}

type fixture struct {
	orchestrator *Orchestrator
	producer     *fakeProducer
	archiver     *fakeArchiver
	guard        *fakeGuard
	archiveDir   string
}

func newFixture(t *testing.T, ruleConfigs []rules.Config) *fixture {
	t.Helper()

	store, err := vendors.NewStore([]vendors.Profile{{
		ID:     "acme",
		Active: true,
		File:   vendors.FileSettings{Format: "csv"},
		Notification: vendors.NotificationSettings{
			Emails: []string{"ops@acme.example"},
		},
		Rules: ruleConfigs,
	}})
	require.NoError(t, err)

	log := logger.NopLogger()
	producer := &fakeProducer{}
	archiver := &fakeArchiver{}
	guard := &fakeGuard{}
	archiveDir := t.TempDir()

	orchestrator := NewOrchestrator(Options{
		Store:    store,
		Parser:   parser.New(log),
		Engine:   rules.NewEngine(store, log),
		Producer: producer,
		Archiver: archiver,
		Guard:    guard,
		Config:   config.PipelineConfig{ArchiveDirectory: archiveDir},
		Logger:   log,
	})

	return &fixture{
		orchestrator: orchestrator,
		producer:     producer,
		archiver:     archiver,
		guard:        guard,
		archiveDir:   archiveDir,
	}
}

func (f *fixture) delivery(t *testing.T, csv string) (broker.Delivery, models.FileArrivalEvent) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	event := models.FileArrivalEvent{
		FileID:        "file-1",
		VendorID:      "acme",
		StoragePath:   path,
		SizeBytes:     int64(len(csv)),
		CorrelationID: "corr-1",
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	return broker.Delivery{
		Queue:         "file.received",
		Body:          body,
		CorrelationID: event.CorrelationID,
		Attempts:      1,
	}, event
}

func amountRangeRules(min, max float64) []rules.Config {
	return []rules.Config{
		{Field: "Id", Kind: "required"},
		{Field: "Amount", Kind: "range", Min: &min, Max: &max},
	}
}

func TestCleanFileIsArchivedAndAcked(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 1000))
	d, event := f.delivery(t, "Id,Amount\n1,100\n2,200")

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.Ack, disposition)

	assert.Empty(t, f.producer.published, "a valid file produces no notification")

	require.Len(t, f.archiver.saved, 1)
	saved := f.archiver.saved[0]
	assert.Equal(t, "file-1", saved.FileID)
	assert.True(t, saved.IsValid)
	assert.Equal(t, 2, saved.RecordCount)
	assert.Equal(t, 0, saved.DiscrepancyCount)

	// The file was moved out of the inbox into the archive.
	_, err := os.Stat(event.StoragePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(saved.ArchivePath)
	assert.NoError(t, err)
}

func TestInvalidFileTriggersNotification(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 50))
	d, _ := f.delivery(t, "Id,Amount\n1,100\n2,200")

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.Ack, disposition)

	require.Len(t, f.producer.published, 1)
	msg := f.producer.published[0]
	assert.Equal(t, "email.discrepancy", msg.queue)
	assert.Equal(t, "corr-1", msg.correlationID)

	var notification models.DiscrepancyNotification
	require.NoError(t, json.Unmarshal(msg.body, &notification))
	assert.Equal(t, "acme", notification.VendorID)
	assert.Len(t, notification.Discrepancies, 2, "one discrepancy per out-of-range record")

	require.Len(t, f.archiver.saved, 1)
	assert.False(t, f.archiver.saved[0].IsValid)
	assert.Equal(t, 2, f.archiver.saved[0].DiscrepancyCount)
}

func TestMalformedPayloadIsDeadLetteredImmediately(t *testing.T) {
	f := newFixture(t, nil)

	disposition := f.orchestrator.Handle(context.Background(), broker.Delivery{
		Queue:    "file.received",
		Body:     []byte("{not json"),
		Attempts: 1,
	})
	assert.Equal(t, broker.DeadLetter, disposition)
	assert.Empty(t, f.archiver.saved)
}

func TestUnknownVendorIsDeadLettered(t *testing.T) {
	f := newFixture(t, nil)
	d, _ := f.delivery(t, "Id\n1")

	var event models.FileArrivalEvent
	require.NoError(t, json.Unmarshal(d.Body, &event))
	event.VendorID = "ghost"
	body, err := json.Marshal(event)
	require.NoError(t, err)
	d.Body = body

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.DeadLetter, disposition)
	assert.Empty(t, f.archiver.saved)
}

func TestMissingFileIsDeadLettered(t *testing.T) {
	f := newFixture(t, nil)
	d, event := f.delivery(t, "Id\n1")
	require.NoError(t, os.Remove(event.StoragePath))

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.DeadLetter, disposition)
}

func TestNotifyPublishFailureRequeues(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 50))
	f.producer.publishErr = errors.New("broker down")
	d, _ := f.delivery(t, "Id,Amount\n1,100")

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.Requeue, disposition)
	assert.Empty(t, f.archiver.saved, "archiving must not happen before notification succeeds")
}

func TestNotificationSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 50))
	f.producer.publishErr = errors.New("broker down")
	d, _ := f.delivery(t, "Id,Amount\n1,100")

	// First delivery fails to publish; the guard claim must be given
	// back so the redelivery is not treated as already notified.
	assert.Equal(t, broker.Requeue, f.orchestrator.Handle(context.Background(), d))
	assert.Empty(t, f.producer.published)

	f.producer.publishErr = nil
	d.Attempts = 2
	assert.Equal(t, broker.Ack, f.orchestrator.Handle(context.Background(), d))

	require.Len(t, f.producer.published, 1, "a failed file must eventually produce a discrepancy notification")
	assert.Equal(t, "email.discrepancy", f.producer.published[0].queue)
}

func TestArchiveFailureRequeues(t *testing.T) {
	f := newFixture(t, nil)
	f.archiver.saveErr = errors.New("mongo down")
	d, _ := f.delivery(t, "Id\n1")

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.Requeue, disposition)
}

func TestRedeliveryArchivesWithoutDuplicateNotification(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 50))
	d, _ := f.delivery(t, "Id,Amount\n1,100")

	// First delivery notifies and archives.
	assert.Equal(t, broker.Ack, f.orchestrator.Handle(context.Background(), d))
	require.Len(t, f.producer.published, 1)
	require.Len(t, f.archiver.saved, 1)

	// Redelivery of the same message: the guard suppresses the second
	// email, the idempotent archive write simply repeats.
	d.Attempts = 2
	assert.Equal(t, broker.Ack, f.orchestrator.Handle(context.Background(), d))
	assert.Len(t, f.producer.published, 1, "no duplicate notification")
	assert.Len(t, f.archiver.saved, 2)
	assert.Equal(t, f.archiver.saved[0].FileID, f.archiver.saved[1].FileID)
}

func TestGuardFailureStillNotifies(t *testing.T) {
	f := newFixture(t, amountRangeRules(0, 50))
	f.guard.err = errors.New("redis down")
	d, _ := f.delivery(t, "Id,Amount\n1,100")

	disposition := f.orchestrator.Handle(context.Background(), d)
	assert.Equal(t, broker.Ack, disposition)
	assert.Len(t, f.producer.published, 1)
}

func TestCanceledContextRequeues(t *testing.T) {
	f := newFixture(t, nil)
	d, _ := f.delivery(t, "Id\n1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	disposition := f.orchestrator.Handle(ctx, d)
	assert.Equal(t, broker.Requeue, disposition)
}
