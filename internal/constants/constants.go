package constants

import "time"

const (
	QueueFileReceived     = "file.received"
	QueueEmailDiscrepancy = "email.discrepancy"
	QueueIssueReported    = "issue.reported"

	DeadLetterSuffix = ".dlq"
)

const (
	// HeaderAttempts counts deliveries of a message; incremented on every
	// requeue so the consumer can dead-letter after MaxDeliveryAttempts.
	HeaderAttempts = "x-attempts"

	DefaultMaxDeliveryAttempts = 5
)

const (
	ContentTypeJSON = "application/json"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	NotifyGuardKeyPrefix         = "notify:"
	DefaultNotifyGuardTTLSeconds = 86400
)

const (
	DefaultPollIntervalSeconds      = 300
	DefaultIssuePollIntervalSeconds = 300
)

const (
	DefaultMongoDBName = "sfex"
	ArchiveCollection  = "archived_files"
	AuditTable         = "processing_audit"
)

const (
	CertExpiryDegradedMargin = 30 * 24 * time.Hour
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXML  = "xml"
	FormatText = "text"
)
