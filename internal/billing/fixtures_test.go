package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

type harness struct {
	repo     *memoryRepo
	notifier *recordingNotifier
	metrics  *countingRecorder
	ledger   *LedgerService
	invoices *InvoiceService
	payments *PaymentService
	storeID  int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newMemoryRepo()
	h := &harness{repo: repo, notifier: &recordingNotifier{}, metrics: &countingRecorder{}}
	cfg := Config{
		Clock:    func() time.Time { return testNow },
		Notifier: h.notifier,
		Metrics:  h.metrics,
	}
	h.ledger = NewLedgerService(repo, cfg)
	h.invoices = NewInvoiceService(repo, cfg)
	h.payments = NewPaymentService(repo, cfg)
	h.storeID = repo.addStore("Downtown")
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) account(t *testing.T, typ AccountType) Account {
	t.Helper()
	acc, err := h.ledger.CreateAccount(context.Background(), CreateAccountInput{
		StoreID:     h.storeID,
		AccountName: "Main account",
		AccountType: typ,
		CreditLimit: dec("1000.00"),
		Currency:    "USD",
	})
	require.NoError(t, err)
	return acc
}

func (h *harness) invoice(t *testing.T, accountID int64, amount, tax string) Invoice {
	t.Helper()
	inv, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceInput{
		BillingAccountID: accountID,
		Amount:           dec(amount),
		TaxAmount:        dec(tax),
		DueDate:          testNow.AddDate(0, 0, 30),
		Description:      "Monthly service",
	})
	require.NoError(t, err)
	return inv
}

func (h *harness) pay(t *testing.T, invoiceID int64, amount string) Payment {
	t.Helper()
	p, err := h.payments.CreatePayment(context.Background(), CreatePaymentInput{
		InvoiceID:   invoiceID,
		Amount:      dec(amount),
		Method:      PaymentMethodBankTransfer,
		PaymentDate: testNow,
	})
	require.NoError(t, err)
	return p
}
