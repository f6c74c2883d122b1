package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billing/internal/billing"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

// NotificationJob delivers TaskTypeNotify tasks by email.
type NotificationJob struct {
	Contacts ContactDirectory
	Mailer   Mailer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes one notification task.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Contacts == nil || j.Mailer == nil {
		return errors.New("notify: handler not configured")
	}
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeNotify)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(
		slog.String("event_id", payload.EventID),
		slog.String("kind", payload.Kind),
		slog.Int64("store_id", payload.StoreID),
	)
	email, err := j.Contacts.StoreEmail(ctx, payload.StoreID)
	if err != nil {
		logger.Error("resolve store email", slog.Any("error", err))
		return err
	}
	if email == "" {
		logger.Info("store has no email, notification dropped")
		return nil
	}
	msg, ok := composeMessage(payload)
	if !ok {
		logger.Warn("unknown notification kind")
		return nil
	}
	msg.To = email
	if err := j.Mailer.Send(ctx, msg); err != nil {
		logger.Error("send notification", slog.Any("error", err))
		return err
	}
	j.Metrics.NotificationSent(payload.Kind)
	logger.Info("notification sent")
	return nil
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeNotify))
	}
	return slog.Default().With(slog.String("job", TaskTypeNotify))
}

func composeMessage(p NotificationPayload) (Message, bool) {
	var subject, lead string
	switch billing.EventKind(p.Kind) {
	case billing.EventInvoiceSent:
		subject = fmt.Sprintf("Invoice %s issued", p.InvoiceNumber)
		lead = "A new invoice has been issued to your account."
	case billing.EventInvoicePaid:
		subject = fmt.Sprintf("Invoice %s paid", p.InvoiceNumber)
		lead = "Thank you. The invoice below is now fully paid."
	case billing.EventInvoiceOverdue:
		subject = fmt.Sprintf("Invoice %s is overdue", p.InvoiceNumber)
		lead = "The invoice below is past its due date. Please arrange payment."
	default:
		return Message{}, false
	}
	var b strings.Builder
	b.WriteString(lead)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Invoice: %s\n", p.InvoiceNumber)
	fmt.Fprintf(&b, "Total:   %s\n", p.TotalAmount)
	fmt.Fprintf(&b, "Due:     %s\n", p.DueDate)
	return Message{Subject: subject, Body: b.String()}, true
}
