package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/billing/internal/billing"
)

// BillingMetrics counts ledger events. It satisfies billing.Recorder.
type BillingMetrics struct {
	paymentsCreated *prometheus.CounterVec
	overpayments    prometheus.Counter
	invoicesPaid    *prometheus.CounterVec
}

// NewBillingMetrics registers the billing collectors on registerer.
func NewBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_payments_created_total",
			Help: "Payments recorded, by payment method.",
		}, []string{"method"}),
		overpayments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_overpayment_rejections_total",
			Help: "Payments rejected because they exceeded the remaining invoice balance.",
		}),
		invoicesPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_invoices_paid_total",
			Help: "Invoices moved to PAID, by source.",
		}, []string{"source"}),
	}
	registerer.MustRegister(m.paymentsCreated, m.overpayments, m.invoicesPaid)
	return m
}

func (m *BillingMetrics) PaymentCreated(method billing.PaymentMethod) {
	m.paymentsCreated.WithLabelValues(string(method)).Inc()
}

func (m *BillingMetrics) OverpaymentRejected() {
	m.overpayments.Inc()
}

func (m *BillingMetrics) InvoicePaid(source string) {
	m.invoicesPaid.WithLabelValues(source).Inc()
}

var _ billing.Recorder = (*BillingMetrics)(nil)
