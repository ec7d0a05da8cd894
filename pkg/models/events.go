package models

import "time"

// FileArrivalEvent announces a downloaded vendor file ready for
// processing. CorrelationID propagates unchanged through every message
// derived from this file.
type FileArrivalEvent struct {
	FileID        string    `json:"file_id"`
	VendorID      string    `json:"vendor_id"`
	StoragePath   string    `json:"storage_path"`
	ContentHash   string    `json:"content_hash"`
	SizeBytes     int64     `json:"size_bytes"`
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
}

type Discrepancy struct {
	RecordID    string `json:"record_id"`
	FieldName   string `json:"field_name"`
	RuleKind    string `json:"rule_kind"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
	Description string `json:"description"`
}

type ValidationResult struct {
	IsValid       bool          `json:"is_valid"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	CorrelationID string        `json:"correlation_id"`
}

// DiscrepancyNotification is published once per file that fails
// validation and is immutable after publish.
type DiscrepancyNotification struct {
	VendorID      string        `json:"vendor_id"`
	FileID        string        `json:"file_id"`
	CorrelationID string        `json:"correlation_id"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IssueReport carries a third-party issue raised through a vendor
// mailbox.
type IssueReport struct {
	VendorID      string    `json:"vendor_id"`
	FileID        string    `json:"file_id,omitempty"`
	Description   string    `json:"description"`
	EmailSubject  string    `json:"email_subject"`
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
}
