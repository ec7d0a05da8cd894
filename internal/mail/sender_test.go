package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sfex/internal/config"
	"sfex/internal/logger"
	"sfex/pkg/models"
)

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		SMTPHost:    "smtp.sfex.internal",
		SMTPPort:    587,
		FromAddress: "pipeline@sfex.internal",
		UseStartTLS: true,
	}
}

func TestSendDiscrepancyReportRequiresRecipients(t *testing.T) {
	sender, err := NewSMTPSender(testMailConfig(), logger.NopLogger())
	require.NoError(t, err)

	err = sender.SendDiscrepancyReport(context.Background(), nil, "subject", models.DiscrepancyNotification{VendorID: "acme"})
	require.Error(t, err)
}
