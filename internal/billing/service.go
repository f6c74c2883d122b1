package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

// EventKind names a billing notification.
type EventKind string

const (
	EventInvoiceSent    EventKind = "invoice.sent"
	EventInvoicePaid    EventKind = "invoice.paid"
	EventInvoiceOverdue EventKind = "invoice.overdue"
)

// Event is handed to the Notifier after the triggering transaction committed.
type Event struct {
	Kind          EventKind
	InvoiceID     int64
	InvoiceNumber string
	AccountID     int64
	StoreID       int64
	TotalAmount   decimal.Decimal
	DueDate       time.Time
	OccurredAt    time.Time
}

// Notifier is a best-effort side channel. Implementations own their error
// handling; callers never observe a result.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Recorder receives billing counters.
type Recorder interface {
	PaymentCreated(method PaymentMethod)
	OverpaymentRejected()
	InvoicePaid(source string)
}

// Sources passed to Recorder.InvoicePaid.
const (
	PaidByReconciliation = "reconciliation"
	PaidManually         = "manual"
)

// Config carries collaborators shared by the billing services.
type Config struct {
	Clock         func() time.Time
	Notifier      Notifier
	Metrics       Recorder
	InvoicePrefix string
}

type deps struct {
	clock    func() time.Time
	notifier Notifier
	metrics  Recorder
}

func newDeps(cfg Config) deps {
	d := deps{clock: cfg.Clock, notifier: cfg.Notifier, metrics: cfg.Metrics}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.notifier == nil {
		d.notifier = nopNotifier{}
	}
	if d.metrics == nil {
		d.metrics = nopRecorder{}
	}
	return d
}

func (d deps) today() time.Time {
	return DateOnly(d.clock())
}

func (d deps) notifyInvoice(ctx context.Context, kind EventKind, inv Invoice) {
	d.notifier.Notify(ctx, Event{
		Kind:          kind,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		AccountID:     inv.BillingAccountID,
		StoreID:       inv.StoreID,
		TotalAmount:   inv.TotalAmount,
		DueDate:       inv.DueDate,
		OccurredAt:    d.clock().UTC(),
	})
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

type nopRecorder struct{}

func (nopRecorder) PaymentCreated(PaymentMethod) {}
func (nopRecorder) OverpaymentRejected()         {}
func (nopRecorder) InvoicePaid(string)           {}

func audit(ctx context.Context, tx TxRepository, action, entity string, id int64, meta map[string]any) error {
	return tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
