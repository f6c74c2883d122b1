package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/shared"
)

func TestCreateInvoiceComputesTotalsAndItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	inv, err := h.invoices.CreateInvoice(ctx, CreateInvoiceInput{
		BillingAccountID: acc.ID,
		Amount:           dec("250.50"),
		TaxAmount:        dec("20.04"),
		DueDate:          time.Date(2024, time.April, 14, 23, 59, 0, 0, time.UTC),
		Description:      "  Cold room rental  ",
		Items: []InvoiceItemInput{
			{Description: "Rack A", Quantity: dec("2.5"), UnitPrice: dec("100.20")},
		},
	})
	require.NoError(t, err)
	require.True(t, dec("270.54").Equal(inv.TotalAmount))
	require.Equal(t, "Cold room rental", inv.Description)
	require.Equal(t, DateOnly(testNow), inv.IssueDate)
	require.Equal(t, time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.Equal(t, acc.AccountName, inv.AccountName)
	require.Equal(t, h.storeID, inv.StoreID)
	require.Len(t, inv.Items, 1)
	require.True(t, dec("250.5").Equal(inv.Items[0].TotalPrice))
	require.Equal(t, inv.ID, inv.Items[0].InvoiceID)

	audits := h.repo.snapshot().audits
	require.NotEmpty(t, audits)
	require.Equal(t, "billing.invoice.create", audits[len(audits)-1].Action)
}

func TestCreateInvoiceNumbersAreSequentialPerPeriod(t *testing.T) {
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	seen := map[string]bool{}
	for i := 1; i <= 3; i++ {
		inv := h.invoice(t, acc.ID, "10.00", "0")
		require.Equal(t, FormatInvoiceNumber("INV", "202403", int64(i)), inv.InvoiceNumber)
		require.False(t, seen[inv.InvoiceNumber])
		seen[inv.InvoiceNumber] = true
	}
}

func TestCreateInvoiceSkipsNumbersAlreadyIssued(t *testing.T) {
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	h.repo.mu.Lock()
	h.repo.state.invoices[500] = Invoice{ID: 500, InvoiceNumber: "INV-202403-000001", BillingAccountID: acc.ID, Status: InvoiceStatusDraft}
	h.repo.mu.Unlock()

	inv := h.invoice(t, acc.ID, "10.00", "0")
	require.Equal(t, "INV-202403-000002", inv.InvoiceNumber)
}

func TestCreateInvoiceGivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	h.repo.mu.Lock()
	for i := int64(1); i <= maxNumberAttempts; i++ {
		h.repo.state.invoices[500+i] = Invoice{ID: 500 + i, InvoiceNumber: FormatInvoiceNumber("INV", "202403", i), BillingAccountID: acc.ID}
	}
	h.repo.mu.Unlock()

	_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceInput{
		BillingAccountID: acc.ID, Amount: dec("10.00"), DueDate: testNow,
	})
	require.ErrorIs(t, err, ErrDuplicateInvoiceNumber)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateInvoiceValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceInput{
		Amount:    dec("0"),
		TaxAmount: dec("-1"),
		Items: []InvoiceItemInput{
			{Quantity: dec("1.0005"), UnitPrice: dec("5.00")},
		},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"billingAccountId", "amount", "taxAmount", "dueDate", "items[0].description", "items[0].quantity"} {
		require.Contains(t, verr.Fields, field)
	}

	_, err = h.invoices.CreateInvoice(context.Background(), CreateInvoiceInput{
		BillingAccountID: 404, Amount: dec("1.00"), DueDate: testNow,
	})
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, h.repo.snapshot().sequences)
}

func TestSendInvoice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)
	inv := h.invoice(t, acc.ID, "10.00", "0")

	sent, err := h.invoices.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, sent.Status)

	again, err := h.invoices.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusSent, again.Status)
	require.Equal(t, []EventKind{EventInvoiceSent}, h.notifier.kinds())

	_, err = h.invoices.MarkPaid(ctx, inv.ID)
	require.NoError(t, err)
	_, err = h.invoices.SendInvoice(ctx, inv.ID)
	require.ErrorIs(t, err, ErrInvoiceNotSendable)

	cancelled := h.invoice(t, acc.ID, "10.00", "0")
	_, err = h.invoices.CancelInvoice(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = h.invoices.SendInvoice(ctx, cancelled.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = h.invoices.SendInvoice(ctx, 9999)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestMarkPaidIsForcedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)
	inv := h.invoice(t, acc.ID, "10.00", "0")

	paid, err := h.invoices.MarkPaid(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)

	h.invoices.deps.clock = func() time.Time { return testNow.AddDate(0, 0, 3) }
	again, err := h.invoices.MarkPaid(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, *paid.PaidDate, *again.PaidDate)
	require.Equal(t, 1, h.metrics.paid[PaidManually])
	require.Equal(t, []EventKind{EventInvoicePaid}, h.notifier.kinds())
}

func TestCancelInvoiceFromAnyStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	paid := h.invoice(t, acc.ID, "10.00", "0")
	paid, err := h.invoices.MarkPaid(ctx, paid.ID)
	require.NoError(t, err)

	cancelled, err := h.invoices.CancelInvoice(ctx, paid.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusCancelled, cancelled.Status)
	require.Equal(t, paid.PaidDate, cancelled.PaidDate)

	again, err := h.invoices.CancelInvoice(ctx, paid.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusCancelled, again.Status)
}

func TestDeleteInvoiceOnlyDrafts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	draft := h.invoice(t, acc.ID, "10.00", "0")
	h.pay(t, draft.ID, "5.00")
	require.NoError(t, h.invoices.DeleteInvoice(ctx, draft.ID))
	_, err := h.invoices.GetInvoice(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, h.repo.snapshot().payments)

	sent := h.invoice(t, acc.ID, "10.00", "0")
	_, err = h.invoices.SendInvoice(ctx, sent.ID)
	require.NoError(t, err)
	require.ErrorIs(t, h.invoices.DeleteInvoice(ctx, sent.ID), ErrInvoiceNotDraft)

	cancelled := h.invoice(t, acc.ID, "10.00", "0")
	_, err = h.invoices.CancelInvoice(ctx, cancelled.ID)
	require.NoError(t, err)
	require.ErrorIs(t, h.invoices.DeleteInvoice(ctx, cancelled.ID), ErrInvoiceNotDraft)
}

func TestInvoiceQueries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	overdue, err := h.invoices.CreateInvoice(ctx, CreateInvoiceInput{
		BillingAccountID: acc.ID, Amount: dec("40.00"), DueDate: testNow.AddDate(0, 0, -2),
	})
	require.NoError(t, err)
	_, err = h.invoices.SendInvoice(ctx, overdue.ID)
	require.NoError(t, err)

	future := h.invoice(t, acc.ID, "60.00", "0")
	_, err = h.invoices.SendInvoice(ctx, future.ID)
	require.NoError(t, err)
	h.invoice(t, acc.ID, "5.00", "0")

	items, total, err := h.invoices.ListOverdue(ctx, InvoiceFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, overdue.ID, items[0].ID)

	sum, err := h.invoices.TotalByAccountAndStatus(ctx, acc.ID, InvoiceStatusSent)
	require.NoError(t, err)
	require.True(t, dec("100.00").Equal(sum))

	_, err = h.invoices.TotalByAccountAndStatus(ctx, acc.ID, InvoiceStatus("LOST"))
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	count, err := h.invoices.CountByAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	start, end := testNow.AddDate(0, 0, 1), testNow.AddDate(0, 0, 40)
	_, total, err = h.invoices.ListDueBetween(ctx, start, end, InvoiceFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, _, err = h.invoices.ListDueBetween(ctx, end, start, InvoiceFilter{})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, total, err = h.invoices.ListIssuedBetween(ctx, DateOnly(testNow), DateOnly(testNow), InvoiceFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)

	byNumber, err := h.invoices.GetInvoiceByNumber(ctx, " "+future.InvoiceNumber+" ")
	require.NoError(t, err)
	require.Equal(t, future.ID, byNumber.ID)

	items, total, err = h.invoices.ListInvoices(ctx, InvoiceFilter{Search: "monthly", Size: 1})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 1)
}

func TestNewInvoiceItemComputesTotal(t *testing.T) {
	item := NewInvoiceItem("Pallet", dec("3"), dec("12.50"))
	require.True(t, dec("37.5").Equal(item.TotalPrice))

	item = NewInvoiceItem("Crate", dec("0.125"), dec("0.25"))
	require.True(t, dec("0.03125").Equal(item.TotalPrice))
}

func TestCreateInvoiceRejectsAmountsBeyondColumnRange(t *testing.T) {
	h := newHarness(t)
	acc := h.account(t, AccountTypePostpaid)

	_, err := h.invoices.CreateInvoice(context.Background(), CreateInvoiceInput{
		BillingAccountID: acc.ID,
		Amount:           dec("99999999999999999.99"),
		TaxAmount:        dec("0.01"),
		DueDate:          testNow.AddDate(0, 0, 30),
		Items: []InvoiceItemInput{
			{Description: "Bulk", Quantity: dec("999999999"), UnitPrice: dec("99999999999999999")},
			{Description: "Huge", Quantity: dec("1e10"), UnitPrice: dec("1e400")},
		},
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "totalAmount")
	require.Contains(t, verr.Fields, "items[0]")
	require.Contains(t, verr.Fields["items[1].quantity"], "integer digits")
	require.Contains(t, verr.Fields["items[1].unitPrice"], "integer digits")
	require.NotContains(t, verr.Fields, "amount")
	require.Empty(t, h.repo.snapshot().invoices)
}

func TestFormatInvoiceNumber(t *testing.T) {
	require.Equal(t, "INV-202610-000042", FormatInvoiceNumber("", "202610", 42))
	require.Equal(t, "BIL-202610-000001", FormatInvoiceNumber(" bil ", "202610", 1))
	require.Equal(t, "INV-202610-1234567", FormatInvoiceNumber("INV", "202610", 1234567))
	require.Equal(t, "202501", InvoicePeriod(time.Date(2024, time.December, 31, 23, 0, 0, 0, time.FixedZone("X", -5*3600))))
}
