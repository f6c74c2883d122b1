package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billing/internal/billing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify delivers one billing notification email.
	TaskTypeNotify = "billing:notify"
	// TaskTypeOverdueScan lists overdue invoices and enqueues reminders.
	TaskTypeOverdueScan = "billing:overdue_scan"
)

// NotificationPayload is the wire form of a billing.Event.
type NotificationPayload struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	InvoiceID     int64     `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	AccountID     int64     `json:"account_id"`
	StoreID       int64     `json:"store_id"`
	TotalAmount   string    `json:"total_amount"`
	DueDate       string    `json:"due_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewNotificationPayload converts an event, tagging it with eventID.
func NewNotificationPayload(eventID string, event billing.Event) NotificationPayload {
	return NotificationPayload{
		EventID:       eventID,
		Kind:          string(event.Kind),
		InvoiceID:     event.InvoiceID,
		InvoiceNumber: event.InvoiceNumber,
		AccountID:     event.AccountID,
		StoreID:       event.StoreID,
		TotalAmount:   event.TotalAmount.StringFixed(2),
		DueDate:       event.DueDate.Format(time.DateOnly),
		OccurredAt:    event.OccurredAt,
	}
}

// NewNotificationTask builds the task. The event id doubles as the asynq task
// id so a duplicate enqueue of the same event is rejected by the broker.
func NewNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data,
		asynq.TaskID(payload.EventID),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
	), nil
}

// OverdueScanPayload bounds a scan to one store when StoreID is set.
type OverdueScanPayload struct {
	StoreID int64 `json:"store_id,omitempty"`
}

// NewOverdueScanTask constructs the overdue scan task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOverdueScan, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
