package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billing/internal/billing"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

const overdueScanPageSize = 200

// OverdueLister is satisfied by *billing.InvoiceService.
type OverdueLister interface {
	ListOverdue(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error)
}

// OverdueScanJob emits an overdue reminder for every sent invoice past due.
type OverdueScanJob struct {
	Invoices OverdueLister
	Notifier billing.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueScanJob wires the scan.
func NewOverdueScanJob(invoices OverdueLister, notifier billing.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Invoices: invoices,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for a task.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil || j.Notifier == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overdue scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.StoreID)
	return err
}

// Run scans overdue invoices, optionally for one store, and returns how many
// reminders were emitted.
func (j *OverdueScanJob) Run(ctx context.Context, storeID int64) (count int, err error) {
	tracker := j.Metrics.Track(TaskTypeOverdueScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	logger.Info("starting overdue scan", slog.Int64("store_id", storeID))

	perStore := make(map[int64]int)
	filter := billing.InvoiceFilter{StoreID: storeID, Size: overdueScanPageSize, SortBy: "dueDate", SortDirection: "asc"}
	for page := 0; ; page++ {
		filter.Page = page
		invoices, total, err := j.Invoices.ListOverdue(ctx, filter)
		if err != nil {
			logger.Error("list overdue invoices", slog.Any("error", err))
			return count, err
		}
		for _, inv := range invoices {
			j.Notifier.Notify(ctx, billing.Event{
				Kind:          billing.EventInvoiceOverdue,
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				AccountID:     inv.BillingAccountID,
				StoreID:       inv.StoreID,
				TotalAmount:   inv.TotalAmount,
				DueDate:       inv.DueDate,
				OccurredAt:    j.now(),
			})
			perStore[inv.StoreID]++
			count++
		}
		if len(invoices) == 0 || (page+1)*overdueScanPageSize >= total {
			break
		}
	}
	for store, n := range perStore {
		j.Metrics.AddOverdueReminders(store, n)
	}
	logger.Info("overdue scan finished", slog.Int("reminders", count), slog.Int("stores", len(perStore)))
	return count, nil
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskTypeOverdueScan))
}

func (j *OverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
