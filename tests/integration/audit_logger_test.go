package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/archive"
)

func TestAuditLogger_LogStageAndHistory(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	auditor := archive.NewAuditLogger(infra.PostgresDB)

	base := time.Now().UTC().Truncate(time.Millisecond)
	stages := []struct {
		stage   string
		outcome string
		detail  string
	}{
		{"received", "ok", ""},
		{"parsing", "ok", "2 records"},
		{"validating", "ok", ""},
		{"acknowledged", "ok", ""},
	}

	for i, s := range stages {
		err := auditor.LogStage(ctx, archive.AuditEntry{
			FileID:        "file-100",
			VendorID:      "acme",
			CorrelationID: "corr-100",
			Stage:         s.stage,
			Outcome:       s.outcome,
			Detail:        s.detail,
			Timestamp:     base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	history, err := auditor.History(ctx, "file-100")
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, "received", history[0].Stage)
	assert.Equal(t, "acknowledged", history[3].Stage)
	assert.Equal(t, "2 records", history[1].Detail)
	assert.Empty(t, history[0].Detail)

	for _, entry := range history {
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "corr-100", entry.CorrelationID)
	}
}

func TestAuditLogger_HistoryScopedToFile(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	auditor := archive.NewAuditLogger(infra.PostgresDB)

	require.NoError(t, auditor.LogStage(ctx, archive.AuditEntry{
		FileID: "file-101", VendorID: "acme", CorrelationID: "corr-101",
		Stage: "received", Outcome: "ok",
	}))
	require.NoError(t, auditor.LogStage(ctx, archive.AuditEntry{
		FileID: "file-102", VendorID: "acme", CorrelationID: "corr-102",
		Stage: "received", Outcome: "dead_letter", Detail: "vendor profile not found",
	}))

	history, err := auditor.History(ctx, "file-102")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "dead_letter", history[0].Outcome)
	assert.Equal(t, "vendor profile not found", history[0].Detail)

	empty, err := auditor.History(ctx, "file-999")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
