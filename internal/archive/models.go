package archive

import (
	"time"
)

// ArchivedFile is the permanent record of one processed vendor file.
// FileID is the idempotency key: a redelivered message overwrites the
// same document instead of creating a sibling.
type ArchivedFile struct {
	FileID           string    `bson:"file_id"`
	VendorID         string    `bson:"vendor_id"`
	CorrelationID    string    `bson:"correlation_id"`
	SourcePath       string    `bson:"source_path"`
	ArchivePath      string    `bson:"archive_path"`
	ContentHash      string    `bson:"content_hash"`
	SizeBytes        int64     `bson:"size_bytes"`
	RecordCount      int       `bson:"record_count"`
	IsValid          bool      `bson:"is_valid"`
	DiscrepancyCount int       `bson:"discrepancy_count"`
	ReceivedAt       time.Time `bson:"received_at"`
	ProcessedAt      time.Time `bson:"processed_at"`
}

// AuditEntry is one row of the relational processing trail, written per
// pipeline stage transition.
type AuditEntry struct {
	ID            string
	FileID        string
	VendorID      string
	CorrelationID string
	Stage         string
	Outcome       string
	Detail        string
	Timestamp     time.Time
}
