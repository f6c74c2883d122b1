package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

// CreatePaymentInput is the validated form of a create-payment request.
type CreatePaymentInput struct {
	InvoiceID   int64           `json:"invoiceId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"required,gte=0.01"`
	Method      PaymentMethod   `json:"paymentMethod" validate:"required,oneof=CASH CREDIT_CARD DEBIT_CARD BANK_TRANSFER CHECK OTHER"`
	Reference   string          `json:"paymentReference" validate:"max=100"`
	PaymentDate time.Time       `json:"paymentDate" validate:"required"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// PaymentService records payments and keeps completed totals within the
// invoice total.
type PaymentService struct {
	repo Repository
	deps deps
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(repo Repository, cfg Config) *PaymentService {
	return &PaymentService{repo: repo, deps: newDeps(cfg)}
}

// CreatePayment records a pending payment against an invoice. The amount may
// not exceed the invoice total minus the already completed payments.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (Payment, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Notes = strings.TrimSpace(in.Notes)
	fields := fieldErrors{}
	fields.checkMoney("amount", in.Amount)
	if err := validateStruct(in, fields); err != nil {
		return Payment{}, err
	}

	var (
		created Payment
		paid    *Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if err := s.ensureWithinRemaining(ctx, tx, inv, in.Amount); err != nil {
			return err
		}
		created, err = tx.InsertPayment(ctx, Payment{
			InvoiceID:   inv.ID,
			Amount:      in.Amount,
			Method:      in.Method,
			Reference:   in.Reference,
			PaymentDate: DateOnly(in.PaymentDate),
			Status:      PaymentStatusPending,
			Notes:       in.Notes,
		})
		if err != nil {
			return err
		}
		created.InvoiceNumber = inv.InvoiceNumber
		if err := audit(ctx, tx, "billing.payment.create", "payment", created.ID, map[string]any{
			"invoice_id": inv.ID,
			"amount":     in.Amount.String(),
			"method":     string(in.Method),
		}); err != nil {
			return err
		}
		paid, err = s.reconcile(ctx, tx, inv)
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.deps.metrics.PaymentCreated(created.Method)
	s.afterReconcile(ctx, paid)
	return created, nil
}

// SetStatus moves a payment along PENDING→COMPLETED, PENDING→FAILED or
// COMPLETED→REFUNDED. Completing a payment reconciles its invoice.
func (s *PaymentService) SetStatus(ctx context.Context, id int64, status PaymentStatus) (Payment, error) {
	if !status.Valid() {
		return Payment{}, shared.NewValidationError(map[string]string{
			"status": "must be one of PENDING COMPLETED FAILED REFUNDED",
		})
	}
	current, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}

	var (
		result Payment
		paid   *Invoice
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Invoice first, then payment: the same order CreatePayment uses.
		inv, err := tx.LockInvoice(ctx, current.InvoiceID)
		if err != nil {
			return err
		}
		p, err := tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == status {
			result = p
			return nil
		}
		if !p.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s to %s", ErrUnsupportedTransition, p.Status, status)
		}
		if status == PaymentStatusCompleted {
			if err := s.ensureWithinRemaining(ctx, tx, inv, p.Amount); err != nil {
				return err
			}
		}
		result, err = tx.UpdatePaymentStatus(ctx, id, status)
		if err != nil {
			return err
		}
		result.InvoiceNumber = inv.InvoiceNumber
		if err := audit(ctx, tx, "billing.payment.status", "payment", id, map[string]any{
			"from": string(p.Status),
			"to":   string(status),
		}); err != nil {
			return err
		}
		if status == PaymentStatusCompleted {
			paid, err = s.reconcile(ctx, tx, inv)
		}
		return err
	})
	if err != nil {
		return Payment{}, err
	}
	s.afterReconcile(ctx, paid)
	return result, nil
}

// CompletePayment marks a pending payment completed.
func (s *PaymentService) CompletePayment(ctx context.Context, id int64) (Payment, error) {
	return s.SetStatus(ctx, id, PaymentStatusCompleted)
}

// FailPayment marks a pending payment failed.
func (s *PaymentService) FailPayment(ctx context.Context, id int64) (Payment, error) {
	return s.SetStatus(ctx, id, PaymentStatusFailed)
}

// RefundPayment marks a completed payment refunded. The invoice keeps its status.
func (s *PaymentService) RefundPayment(ctx context.Context, id int64) (Payment, error) {
	return s.SetStatus(ctx, id, PaymentStatusRefunded)
}

// DeletePayment removes a payment unless it is completed.
func (s *PaymentService) DeletePayment(ctx context.Context, id int64) error {
	current, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockInvoice(ctx, current.InvoiceID); err != nil {
			return err
		}
		p, err := tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == PaymentStatusCompleted {
			return ErrPaymentCompleted
		}
		if err := tx.DeletePayment(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, "billing.payment.delete", "payment", id, map[string]any{
			"invoice_id": p.InvoiceID,
			"status":     string(p.Status),
		})
	})
}

// Reconcile re-evaluates an invoice against its completed payments and marks
// it paid when they cover the total. It reports whether the status changed.
func (s *PaymentService) Reconcile(ctx context.Context, invoiceID int64) (Invoice, bool, error) {
	var (
		result Invoice
		paid   *Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		result = inv
		paid, err = s.reconcile(ctx, tx, inv)
		if paid != nil {
			result = *paid
		}
		return err
	})
	if err != nil {
		return Invoice{}, false, err
	}
	s.afterReconcile(ctx, paid)
	return result, paid != nil, nil
}

// reconcile must run with the invoice row locked. It returns the updated
// invoice only when this call flipped it to PAID.
func (s *PaymentService) reconcile(ctx context.Context, tx TxRepository, inv Invoice) (*Invoice, error) {
	if inv.Status == InvoiceStatusPaid {
		return nil, nil
	}
	total, err := tx.SumCompletedByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if total.LessThan(inv.TotalAmount) {
		return nil, nil
	}
	today := s.deps.today()
	updated, err := tx.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusPaid, &today)
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, tx, "billing.invoice.reconciled", "invoice", inv.ID, map[string]any{
		"total_paid": total.String(),
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *PaymentService) afterReconcile(ctx context.Context, paid *Invoice) {
	if paid == nil {
		return
	}
	s.deps.metrics.InvoicePaid(PaidByReconciliation)
	s.deps.notifyInvoice(ctx, EventInvoicePaid, *paid)
}

func (s *PaymentService) ensureWithinRemaining(ctx context.Context, tx TxRepository, inv Invoice, amount decimal.Decimal) error {
	completed, err := tx.SumCompletedByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	remaining := inv.TotalAmount.Sub(completed)
	if amount.GreaterThan(remaining) {
		s.deps.metrics.OverpaymentRejected()
		return fmt.Errorf("%w: remaining %s, requested %s", ErrOverpayment, remaining.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// GetPayment returns one payment.
func (s *PaymentService) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns a filtered page of payments and the total match count.
func (s *PaymentService) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error) {
	if err := checkRange("paymentDate", filter.DateFrom, filter.DateTo); err != nil {
		return nil, 0, err
	}
	return s.repo.ListPayments(ctx, filter)
}

// TotalCompletedForInvoice sums completed payments on an invoice.
func (s *PaymentService) TotalCompletedForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.SumCompletedByInvoice(ctx, invoiceID)
}

// TotalCompletedForAccount sums completed payments across an account's invoices.
func (s *PaymentService) TotalCompletedForAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.SumCompletedByAccount(ctx, accountID)
}

// TotalsByMethod sums a store's completed payments per payment method.
func (s *PaymentService) TotalsByMethod(ctx context.Context, storeID int64) (map[PaymentMethod]decimal.Decimal, error) {
	return s.repo.SumCompletedByMethod(ctx, storeID)
}
