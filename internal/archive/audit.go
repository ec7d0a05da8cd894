package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sfex/internal/constants"
	"sfex/pkg/metrics"
)

// AuditLogger writes one relational row per pipeline stage outcome.
// The archive store answers "what is the file", the audit trail answers
// "what happened to it".
type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

func (a *AuditLogger) LogStage(ctx context.Context, entry AuditEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, file_id, vendor_id, correlation_id, stage, outcome, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, constants.AuditTable)

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var detail *string
	if entry.Detail != "" {
		detail = &entry.Detail
	}

	_, err := a.db.ExecContext(ctx, query,
		id, entry.FileID, entry.VendorID, entry.CorrelationID,
		entry.Stage, entry.Outcome, detail, timestamp,
	)
	if err != nil {
		metrics.AuditWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	metrics.AuditWritesTotal.WithLabelValues("success").Inc()
	return nil
}

// History returns the stage trail for one file, oldest first.
func (a *AuditLogger) History(ctx context.Context, fileID string) ([]AuditEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, file_id, vendor_id, correlation_id, stage, outcome, COALESCE(detail, ''), timestamp
		FROM %s
		WHERE file_id = $1
		ORDER BY timestamp ASC
	`, constants.AuditTable)

	rows, err := a.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(
			&entry.ID, &entry.FileID, &entry.VendorID, &entry.CorrelationID,
			&entry.Stage, &entry.Outcome, &entry.Detail, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit rows: %w", err)
	}
	return entries, nil
}
