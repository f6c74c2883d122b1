package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billing/internal/billing"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns billing events into notification tasks. Failures are logged
// and never reach the caller.
type Notifier struct {
	queue  Enqueuer
	logger *slog.Logger
	newID  func() string
}

// NewNotifier constructs a Notifier backed by queue.
func NewNotifier(queue Enqueuer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{queue: queue, logger: logger, newID: uuid.NewString}
}

// Notify enqueues event for delivery.
func (n *Notifier) Notify(ctx context.Context, event billing.Event) {
	payload := NewNotificationPayload(n.newID(), event)
	logger := n.logger.With(
		slog.String("event_id", payload.EventID),
		slog.String("kind", payload.Kind),
		slog.Int64("invoice_id", event.InvoiceID),
	)
	task, err := NewNotificationTask(payload)
	if err != nil {
		logger.Error("build notification task", slog.Any("error", err))
		return
	}
	if _, err := n.queue.EnqueueContext(context.WithoutCancel(ctx), task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Debug("notification already queued")
			return
		}
		logger.Error("enqueue notification", slog.Any("error", err))
		return
	}
	logger.Debug("notification queued")
}

var _ billing.Notifier = (*Notifier)(nil)
