package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"sfex/internal/broker"
	"sfex/internal/logger"
	"sfex/internal/vendors"
	"sfex/pkg/models"
)

// NotificationHandler consumes discrepancy notifications and mails
// them to the vendor's registered contacts.
type NotificationHandler struct {
	sender Sender
	store  *vendors.Store
	logger logger.Logger
}

func NewNotificationHandler(sender Sender, store *vendors.Store, log logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		sender: sender,
		store:  store,
		logger: log,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, d broker.Delivery) broker.Disposition {
	var notification models.DiscrepancyNotification
	if err := json.Unmarshal(d.Body, &notification); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to unmarshal discrepancy notification",
			"error", err,
		)
		return broker.DeadLetter
	}

	profile, err := h.store.Get(notification.VendorID)
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Unknown vendor on notification, dead-lettering",
			"vendor_id", notification.VendorID,
			"error", err,
		)
		return broker.DeadLetter
	}

	if len(profile.Notification.Emails) == 0 {
		// A vendor without contacts is a profile gap, not a transient
		// fault; retrying cannot fix it.
		h.logger.ErrorwCtx(ctx, "Vendor has no notification contacts, dead-lettering",
			"vendor_id", notification.VendorID,
		)
		return broker.DeadLetter
	}

	subject := profile.Notification.Subject
	if subject == "" {
		subject = fmt.Sprintf("Discrepancies found in file %s", notification.FileID)
	}

	if err := h.sender.SendDiscrepancyReport(ctx, profile.Notification.Emails, subject, notification); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to send discrepancy report, requeueing",
			"vendor_id", notification.VendorID,
			"error", err,
		)
		return broker.Requeue
	}

	return broker.Ack
}
