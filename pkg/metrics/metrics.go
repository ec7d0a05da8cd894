package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_files_processed_total",
			Help: "Total number of file-arrival messages processed, by final disposition (count)",
		},
		[]string{"vendor", "disposition"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_ms",
			Help:    "Duration of individual pipeline stages in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"stage"},
	)

	ParsedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_records_total",
			Help: "Total number of records produced by the file parser (count)",
		},
		[]string{"vendor", "format"},
	)

	ValidationResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_results_total",
			Help: "Total number of validation runs by outcome (count)",
		},
		[]string{"vendor", "result"},
	)

	ValidationDiscrepanciesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_discrepancies_total",
			Help: "Total number of discrepancies emitted by the rule engine (count)",
		},
		[]string{"vendor", "rule_kind"},
	)

	ValidationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_duration_ms",
			Help:    "Rule engine evaluation duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"vendor"},
	)

	BrokerPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publishes_total",
			Help: "Total number of broker publishes by queue and status (count)",
		},
		[]string{"queue", "status"},
	)

	BrokerRedeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_redeliveries_total",
			Help: "Total number of messages requeued for redelivery (count)",
		},
		[]string{"queue"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages moved to a dead-letter queue (count)",
		},
		[]string{"service", "queue", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "queue"},
	)

	SftpFilesDownloadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftp_files_downloaded_total",
			Help: "Total number of files downloaded from vendor drop points (count)",
		},
		[]string{"vendor", "status"},
	)

	SftpPollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sftp_poll_duration_ms",
			Help:    "Duration of one SFTP poll cycle per vendor in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000},
		},
		[]string{"vendor"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of discrepancy notifications sent (count)",
		},
		[]string{"vendor", "status"},
	)

	IssueReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issue_reports_total",
			Help: "Total number of third-party issue reports published (count)",
		},
		[]string{"vendor"},
	)

	ArchiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Total number of archive store writes (count)",
		},
		[]string{"status"},
	)

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of audit log writes (count)",
		},
		[]string{"status"},
	)

	VaultRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_requests_total",
			Help: "Total number of secret store requests (count)",
		},
		[]string{"operation", "status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of HTTP requests seen by the rate limiter (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through a circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures recorded by a circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(
		FilesProcessedTotal,
		PipelineStageDuration,
		ParsedRecordsTotal,
		ValidationResultsTotal,
		ValidationDiscrepanciesTotal,
		ValidationDuration,
		ArchiveWritesTotal,
		AuditWritesTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		BrokerPublishesTotal,
		BrokerRedeliveriesTotal,
		DLQMessagesTotal,
		RetryAttemptsTotal,
	)
}

func RegisterIngestionMetrics() {
	prometheus.MustRegister(
		SftpFilesDownloadedTotal,
		SftpPollDuration,
	)
}

func RegisterNotificationMetrics() {
	prometheus.MustRegister(
		NotificationsSentTotal,
		IssueReportsTotal,
	)
}

func RegisterValidationMetrics() {
	prometheus.MustRegister(
		ValidationResultsTotal,
		ValidationDiscrepanciesTotal,
		ValidationDuration,
	)
}

func RegisterVaultMetrics() {
	prometheus.MustRegister(VaultRequestsTotal)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveStageDuration(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(float64(duration.Milliseconds()))
}

func ObserveValidationDuration(vendor string, duration time.Duration) {
	ValidationDuration.WithLabelValues(vendor).Observe(float64(duration.Milliseconds()))
}

func IncFileProcessed(vendor, disposition string) {
	FilesProcessedTotal.WithLabelValues(vendor, disposition).Inc()
}

func IncBrokerPublish(queue, status string) {
	BrokerPublishesTotal.WithLabelValues(queue, status).Inc()
}
