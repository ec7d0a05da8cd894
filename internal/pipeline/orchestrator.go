package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sfex/internal/archive"
	"sfex/internal/broker"
	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/filecrypto"
	"sfex/internal/logger"
	"sfex/internal/parser"
	"sfex/internal/rules"
	"sfex/internal/vendors"
	"sfex/pkg/errors"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/models"
	"sfex/pkg/tracing"
)

// Pipeline stages, in processing order.
const (
	StageReceived     = "received"
	StageParsing      = "parsing"
	StageValidating   = "validating"
	StageNotifying    = "notifying"
	StageArchiving    = "archiving"
	StageAcknowledged = "acknowledged"
)

// Auditor records stage outcomes; audit failures never change a
// message's fate.
type Auditor interface {
	LogStage(ctx context.Context, entry archive.AuditEntry) error
}

// Orchestrator drives one file-arrival message through the pipeline:
// parse, validate, notify on discrepancies, archive, acknowledge. It
// processes a single message at a time; concurrency lives in the broker
// prefetch, not here.
type Orchestrator struct {
	store    *vendors.Store
	parser   *parser.Parser
	engine   *rules.Engine
	producer broker.Producer
	archiver archive.Repository
	auditor  Auditor
	guard    archive.NotifyGuard
	keys     filecrypto.KeyProvider
	cfg      config.PipelineConfig
	logger   logger.Logger
}

type Options struct {
	Store    *vendors.Store
	Parser   *parser.Parser
	Engine   *rules.Engine
	Producer broker.Producer
	Archiver archive.Repository
	Auditor  Auditor
	Guard    archive.NotifyGuard
	Keys     filecrypto.KeyProvider
	Config   config.PipelineConfig
	Logger   logger.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		store:    opts.Store,
		parser:   opts.Parser,
		engine:   opts.Engine,
		producer: opts.Producer,
		archiver: opts.Archiver,
		auditor:  opts.Auditor,
		guard:    opts.Guard,
		keys:     opts.Keys,
		cfg:      opts.Config,
		logger:   opts.Logger,
	}
}

// Handle is the broker handler for the file-received queue.
func (o *Orchestrator) Handle(ctx context.Context, d broker.Delivery) broker.Disposition {
	ctx, span := tracing.GetTracer("pipeline-service").Start(ctx, "pipeline.handle")
	defer span.End()

	var event models.FileArrivalEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		// Poison message: no retry will ever make it parse.
		o.logger.ErrorwCtx(ctx, "Failed to unmarshal file arrival event",
			"error", err,
			"attempts", d.Attempts,
		)
		metrics.IncFileProcessed("unknown", broker.DeadLetter.String())
		return broker.DeadLetter
	}

	ctx = logging.WithCorrelationID(ctx, event.CorrelationID)
	ctx = logging.WithFileID(ctx, event.FileID)
	ctx = logging.WithVendorID(ctx, event.VendorID)

	disposition := o.process(ctx, event)
	metrics.IncFileProcessed(event.VendorID, disposition.String())
	return disposition
}

func (o *Orchestrator) process(ctx context.Context, event models.FileArrivalEvent) broker.Disposition {
	o.logger.InfowCtx(ctx, "Processing file arrival",
		"storage_path", event.StoragePath,
		"size_bytes", event.SizeBytes,
	)
	o.audit(ctx, event, StageReceived, "ok", "")

	profile, err := o.store.Get(event.VendorID)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Unknown vendor, dead-lettering",
			"error", err,
		)
		o.audit(ctx, event, StageReceived, "dead_letter", err.Error())
		return broker.DeadLetter
	}

	if err := ctx.Err(); err != nil {
		return broker.Requeue
	}

	records, disposition := o.parse(ctx, event, profile)
	if disposition != broker.Ack {
		return disposition
	}

	if err := ctx.Err(); err != nil {
		return broker.Requeue
	}

	result, disposition := o.validate(ctx, event, records)
	if disposition != broker.Ack {
		return disposition
	}

	if err := ctx.Err(); err != nil {
		return broker.Requeue
	}

	if !result.IsValid {
		if disposition := o.notify(ctx, event, profile, result); disposition != broker.Ack {
			return disposition
		}
	}

	if err := ctx.Err(); err != nil {
		return broker.Requeue
	}

	if disposition := o.archive(ctx, event, len(records), result); disposition != broker.Ack {
		return disposition
	}

	o.audit(ctx, event, StageAcknowledged, "ok", "")
	o.logger.InfowCtx(ctx, "File processed",
		"records", len(records),
		"valid", result.IsValid,
		"discrepancies", len(result.Discrepancies),
	)
	return broker.Ack
}

func (o *Orchestrator) parse(ctx context.Context, event models.FileArrivalEvent, profile vendors.Profile) ([]models.Record, broker.Disposition) {
	start := time.Now()
	defer func() {
		metrics.ObserveStageDuration(StageParsing, time.Since(start))
	}()

	content, err := o.readFile(event)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "File content unavailable, dead-lettering",
			"error", err,
			"storage_path", event.StoragePath,
		)
		o.audit(ctx, event, StageParsing, "dead_letter", err.Error())
		return nil, broker.DeadLetter
	}

	if profile.File.Encrypted {
		content, err = o.decrypt(ctx, content)
		if err != nil {
			if errors.IsFatal(err) {
				o.audit(ctx, event, StageParsing, "dead_letter", err.Error())
				return nil, broker.DeadLetter
			}
			o.logger.WarnwCtx(ctx, "File key unavailable, requeueing",
				"error", err,
			)
			return nil, broker.Requeue
		}
	}

	opts := parser.Options{
		Format:         profile.File.Format,
		Delimiter:      profile.File.Delimiter,
		FieldSeparator: profile.File.FieldSeparator,
		KVSeparator:    profile.File.KVSeparator,
	}

	records, err := o.parser.Parse(ctx, opts, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, broker.Requeue
		}
		// Unsupported format and malformed content are permanent.
		o.logger.ErrorwCtx(ctx, "Parse failed, dead-lettering",
			"error", err,
			"format", profile.File.Format,
		)
		o.audit(ctx, event, StageParsing, "dead_letter", err.Error())
		return nil, broker.DeadLetter
	}

	metrics.ParsedRecordsTotal.WithLabelValues(event.VendorID, profile.File.Format).Add(float64(len(records)))
	o.audit(ctx, event, StageParsing, "ok", fmt.Sprintf("%d records", len(records)))
	return records, broker.Ack
}

// readFile tolerates a redelivery that already moved the file into the
// archive directory.
func (o *Orchestrator) readFile(event models.FileArrivalEvent) ([]byte, error) {
	content, err := os.ReadFile(event.StoragePath)
	if err == nil {
		return content, nil
	}
	if archived := o.archivePath(event); archived != event.StoragePath {
		if archivedContent, archErr := os.ReadFile(archived); archErr == nil {
			return archivedContent, nil
		}
	}
	return nil, err
}

func (o *Orchestrator) decrypt(ctx context.Context, content []byte) ([]byte, error) {
	if o.keys == nil {
		return nil, errors.ErrInternal.WithDetail("message", "encrypted file but no key provider configured").AsFatal()
	}

	key, err := o.keys.FileKey(ctx)
	if err != nil {
		// Secret store outages are transient.
		return nil, err
	}

	plaintext, err := filecrypto.Decrypt(key, content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedContent)
	}
	return plaintext, nil
}

func (o *Orchestrator) validate(ctx context.Context, event models.FileArrivalEvent, records []models.Record) (models.ValidationResult, broker.Disposition) {
	start := time.Now()
	defer func() {
		metrics.ObserveStageDuration(StageValidating, time.Since(start))
	}()

	result, err := o.engine.ValidateVendor(ctx, event.VendorID, event.CorrelationID, records)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Validation failed, dead-lettering",
			"error", err,
		)
		o.audit(ctx, event, StageValidating, "dead_letter", err.Error())
		return models.ValidationResult{}, broker.DeadLetter
	}

	outcome := "valid"
	if !result.IsValid {
		outcome = "invalid"
	}
	o.audit(ctx, event, StageValidating, outcome, fmt.Sprintf("%d discrepancies", len(result.Discrepancies)))
	return result, broker.Ack
}

func (o *Orchestrator) notify(ctx context.Context, event models.FileArrivalEvent, profile vendors.Profile, result models.ValidationResult) broker.Disposition {
	start := time.Now()
	defer func() {
		metrics.ObserveStageDuration(StageNotifying, time.Since(start))
	}()

	claimed := false
	if o.guard != nil {
		ok, err := o.guard.Claim(ctx, event.CorrelationID)
		if err != nil {
			// Better a duplicate email than a missed one.
			o.logger.WarnwCtx(ctx, "Notify guard unavailable, sending anyway",
				"error", err,
			)
		} else if !ok {
			o.logger.InfowCtx(ctx, "Notification already sent for this file, skipping")
			o.audit(ctx, event, StageNotifying, "skipped", "already notified")
			return broker.Ack
		} else {
			claimed = true
		}
	}

	notification := models.DiscrepancyNotification{
		VendorID:      event.VendorID,
		FileID:        event.FileID,
		CorrelationID: event.CorrelationID,
		Discrepancies: result.Discrepancies,
		CreatedAt:     time.Now().UTC(),
	}

	body, err := json.Marshal(notification)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to marshal notification, dead-lettering",
			"error", err,
		)
		return broker.DeadLetter
	}

	if err := o.producer.Publish(ctx, constants.QueueEmailDiscrepancy, body, event.CorrelationID); err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to publish notification, requeueing",
			"error", err,
		)
		if claimed {
			// The claim must not outlive a failed publish, or the
			// redelivery would skip the notification.
			if relErr := o.guard.Release(ctx, event.CorrelationID); relErr != nil {
				o.logger.WarnwCtx(ctx, "Failed to release notify claim, it expires with its TTL",
					"error", relErr,
				)
			}
		}
		o.audit(ctx, event, StageNotifying, "requeue", err.Error())
		return broker.Requeue
	}

	o.audit(ctx, event, StageNotifying, "ok", fmt.Sprintf("%d discrepancies for %v", len(result.Discrepancies), profile.Notification.Emails))
	return broker.Ack
}

func (o *Orchestrator) archive(ctx context.Context, event models.FileArrivalEvent, recordCount int, result models.ValidationResult) broker.Disposition {
	start := time.Now()
	defer func() {
		metrics.ObserveStageDuration(StageArchiving, time.Since(start))
	}()

	archivePath, err := o.moveToArchive(event)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to move file into archive, requeueing",
			"error", err,
		)
		o.audit(ctx, event, StageArchiving, "requeue", err.Error())
		return broker.Requeue
	}

	record := archive.ArchivedFile{
		FileID:           event.FileID,
		VendorID:         event.VendorID,
		CorrelationID:    event.CorrelationID,
		SourcePath:       event.StoragePath,
		ArchivePath:      archivePath,
		ContentHash:      event.ContentHash,
		SizeBytes:        event.SizeBytes,
		RecordCount:      recordCount,
		IsValid:          result.IsValid,
		DiscrepancyCount: len(result.Discrepancies),
		ReceivedAt:       event.ReceivedAt,
		ProcessedAt:      time.Now().UTC(),
	}

	if o.archiver != nil {
		if err := o.archiver.Save(ctx, record); err != nil {
			o.logger.ErrorwCtx(ctx, "Failed to save archive record, requeueing",
				"error", err,
			)
			o.audit(ctx, event, StageArchiving, "requeue", err.Error())
			return broker.Requeue
		}
	}

	o.audit(ctx, event, StageArchiving, "ok", archivePath)
	return broker.Ack
}

func (o *Orchestrator) archivePath(event models.FileArrivalEvent) string {
	if o.cfg.ArchiveDirectory == "" {
		return event.StoragePath
	}
	return filepath.Join(o.cfg.ArchiveDirectory, event.VendorID, filepath.Base(event.StoragePath))
}

// moveToArchive is idempotent: a file already in place from an earlier
// delivery counts as moved.
func (o *Orchestrator) moveToArchive(event models.FileArrivalEvent) (string, error) {
	target := o.archivePath(event)
	if target == event.StoragePath {
		return target, nil
	}

	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.Rename(event.StoragePath, target); err != nil {
		return "", fmt.Errorf("failed to move file into archive: %w", err)
	}
	return target, nil
}

func (o *Orchestrator) audit(ctx context.Context, event models.FileArrivalEvent, stage, outcome, detail string) {
	if o.auditor == nil {
		return
	}
	entry := archive.AuditEntry{
		FileID:        event.FileID,
		VendorID:      event.VendorID,
		CorrelationID: event.CorrelationID,
		Stage:         stage,
		Outcome:       outcome,
		Detail:        detail,
	}
	if err := o.auditor.LogStage(ctx, entry); err != nil {
		o.logger.WarnwCtx(ctx, "Failed to write audit entry",
			"stage", stage,
			"error", err,
		)
	}
}
