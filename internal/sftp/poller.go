package sftp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sfex/internal/broker"
	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/internal/vendors"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/models"
)

// Poller walks every pollable vendor's drop point on its own cadence,
// downloads new files and publishes a file-arrival event per download.
// It runs independently of any consumer so a stalled pipeline never
// stops ingestion.
type Poller struct {
	store    *vendors.Store
	producer broker.Producer
	dial     Dialer
	cfg      config.IngestionConfig
	logger   logger.Logger

	lastPolled map[string]time.Time
}

func NewPoller(store *vendors.Store, producer broker.Producer, dial Dialer, cfg config.IngestionConfig, log logger.Logger) *Poller {
	return &Poller{
		store:      store,
		producer:   producer,
		dial:       dial,
		cfg:        cfg,
		logger:     log,
		lastPolled: make(map[string]time.Time),
	}
}

// Run wakes at the shortest vendor interval and polls every vendor
// whose own interval has elapsed.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.store.MinPollInterval()
	p.logger.InfowCtx(ctx, "Ingestion poller started",
		"wake_interval", interval,
		"vendors", p.store.Len(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.pollDue(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			p.logger.InfowCtx(ctx, "Ingestion poller stopped")
			return ctx.Err()
		case now := <-ticker.C:
			p.pollDue(ctx, now)
		}
	}
}

func (p *Poller) pollDue(ctx context.Context, now time.Time) {
	for _, profile := range p.store.All() {
		if ctx.Err() != nil {
			return
		}
		if !profile.PollEnabled() {
			continue
		}

		due := time.Duration(profile.PollIntervalSeconds()) * time.Second
		if last, ok := p.lastPolled[profile.ID]; ok && now.Sub(last) < due {
			continue
		}
		p.lastPolled[profile.ID] = now

		vendorCtx := logging.WithVendorID(ctx, profile.ID)
		start := time.Now()
		if err := p.pollVendor(vendorCtx, profile); err != nil {
			p.logger.ErrorwCtx(vendorCtx, "Poll cycle failed",
				"error", err,
			)
			if p.cfg.ErrorBackoffSeconds > 0 {
				// Push the next attempt out so a broken drop point is
				// not hammered on every wake-up.
				backoff := time.Duration(p.cfg.ErrorBackoffSeconds)*time.Second - due
				p.lastPolled[profile.ID] = now.Add(backoff)
			}
		}
		metrics.SftpPollDuration.WithLabelValues(profile.ID).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (p *Poller) pollVendor(ctx context.Context, profile vendors.Profile) error {
	client, err := p.dial(profile.SFTP)
	if err != nil {
		return fmt.Errorf("failed to connect to vendor %s: %w", profile.ID, err)
	}
	defer client.Close()

	files, err := client.List(profile.SFTP.RemoteDirectory, profile.SFTP.FilePattern)
	if err != nil {
		return err
	}

	for _, file := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.ingestFile(ctx, client, profile, file); err != nil {
			metrics.SftpFilesDownloadedTotal.WithLabelValues(profile.ID, "error").Inc()
			p.logger.ErrorwCtx(ctx, "Failed to ingest file",
				"file", file.Name,
				"error", err,
			)
			continue
		}
		metrics.SftpFilesDownloadedTotal.WithLabelValues(profile.ID, "success").Inc()
	}
	return nil
}

// ingestFile downloads one remote file, records it locally and
// publishes its arrival. The remote copy is removed only after the
// event is safely published, so a crash re-ingests rather than loses.
func (p *Poller) ingestFile(ctx context.Context, client RemoteClient, profile vendors.Profile, file RemoteFile) error {
	remotePath := path.Join(profile.SFTP.RemoteDirectory, file.Name)

	localDir := filepath.Join(p.cfg.DownloadDirectory, profile.ID)
	if err := os.MkdirAll(localDir, 0o750); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	fileID := uuid.New().String()
	localPath := filepath.Join(localDir, fileID+"_"+file.Name)

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}

	hasher := sha256.New()
	size, err := client.Download(remotePath, io.MultiWriter(out, hasher))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return err
	}

	correlationID := uuid.New().String()
	event := models.NewFileArrivalEventBuilder().
		WithFileID(fileID).
		WithVendorID(profile.ID).
		WithStoragePath(localPath).
		WithContentHash(hex.EncodeToString(hasher.Sum(nil))).
		WithSizeBytes(size).
		WithCorrelationID(correlationID).
		Build()

	body, err := json.Marshal(event)
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("failed to marshal file arrival event: %w", err)
	}

	if err := p.producer.Publish(ctx, constants.QueueFileReceived, body, correlationID); err != nil {
		_ = os.Remove(localPath)
		return err
	}

	p.logger.InfowCtx(ctx, "File ingested",
		"file_id", fileID,
		"file", file.Name,
		"size_bytes", size,
		"correlation_id", correlationID,
	)

	if profile.SFTP.DeleteAfterDownload {
		if err := client.Remove(remotePath); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to remove remote file after download",
				"file", file.Name,
				"error", err,
			)
		}
	}
	return nil
}
