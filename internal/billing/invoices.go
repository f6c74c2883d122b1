package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

const maxNumberAttempts = 3

// CreateInvoiceInput is the validated form of a create-invoice request.
type CreateInvoiceInput struct {
	BillingAccountID int64              `json:"billingAccountId" validate:"required,gt=0"`
	Amount           decimal.Decimal    `json:"amount" validate:"required,gte=0.01"`
	TaxAmount        decimal.Decimal    `json:"taxAmount" validate:"gte=0"`
	DueDate          time.Time          `json:"dueDate" validate:"required"`
	Description      string             `json:"description" validate:"max=1000"`
	Items            []InvoiceItemInput `json:"items" validate:"dive"`
}

// InvoiceItemInput describes one line of a new invoice.
type InvoiceItemInput struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required,gte=0.001"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"required,gte=0.01"`
}

// InvoiceService drives the invoice lifecycle.
type InvoiceService struct {
	repo   Repository
	deps   deps
	prefix string
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(repo Repository, cfg Config) *InvoiceService {
	prefix := cfg.InvoicePrefix
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return &InvoiceService{repo: repo, deps: newDeps(cfg), prefix: prefix}
}

// CreateInvoice issues a draft invoice with its items against a billing account.
func (s *InvoiceService) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	in.Description = strings.TrimSpace(in.Description)
	fields := fieldErrors{}
	fields.checkMoney("amount", in.Amount)
	fields.checkMoney("taxAmount", in.TaxAmount)
	fields.checkDigits("totalAmount", in.Amount.Add(in.TaxAmount), moneyDigits)
	for i := range in.Items {
		in.Items[i].Description = strings.TrimSpace(in.Items[i].Description)
		fields.checkDigits(fmt.Sprintf("items[%d].quantity", i), in.Items[i].Quantity, quantityDigits)
		fields.checkScale(fmt.Sprintf("items[%d].quantity", i), in.Items[i].Quantity, quantityScale)
		fields.checkMoney(fmt.Sprintf("items[%d].unitPrice", i), in.Items[i].UnitPrice)
		fields.checkDigits(fmt.Sprintf("items[%d]", i), in.Items[i].Quantity.Mul(in.Items[i].UnitPrice), lineTotalDigits)
	}
	if err := validateStruct(in, fields); err != nil {
		return Invoice{}, err
	}

	today := s.deps.today()
	draft := Invoice{
		BillingAccountID: in.BillingAccountID,
		Amount:           in.Amount,
		TaxAmount:        in.TaxAmount,
		TotalAmount:      in.Amount.Add(in.TaxAmount),
		Status:           InvoiceStatusDraft,
		IssueDate:        today,
		DueDate:          DateOnly(in.DueDate),
		Description:      in.Description,
		Items:            make([]InvoiceItem, 0, len(in.Items)),
	}
	for _, item := range in.Items {
		draft.Items = append(draft.Items, NewInvoiceItem(item.Description, item.Quantity, item.UnitPrice))
	}

	if _, err := s.repo.GetAccount(ctx, in.BillingAccountID); err != nil {
		return Invoice{}, err
	}

	// Numbers are drawn in their own transaction so a collision with an
	// existing number moves the counter forward before the next attempt.
	period := InvoicePeriod(today)
	var (
		created Invoice
		err     error
	)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		var seq int64
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			seq, err = tx.NextInvoiceSequence(ctx, period)
			return err
		})
		if err != nil {
			break
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			account, err := tx.GetAccount(ctx, in.BillingAccountID)
			if err != nil {
				return err
			}
			inv := draft
			inv.InvoiceNumber = FormatInvoiceNumber(s.prefix, period, seq)
			created, err = tx.InsertInvoice(ctx, inv)
			if err != nil {
				return err
			}
			created.AccountName = account.AccountName
			created.StoreID = account.StoreID
			return audit(ctx, tx, "billing.invoice.create", "invoice", created.ID, map[string]any{
				"invoice_number": created.InvoiceNumber,
				"total_amount":   created.TotalAmount.String(),
			})
		})
		if !errors.Is(err, ErrDuplicateInvoiceNumber) {
			break
		}
	}
	if err != nil {
		return Invoice{}, err
	}
	return created, nil
}

// SendInvoice moves a draft invoice to SENT. Sending an already sent invoice
// is a no-op; paid and cancelled invoices are rejected.
func (s *InvoiceService) SendInvoice(ctx context.Context, id int64) (Invoice, error) {
	var (
		result Invoice
		sent   bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanSend() {
			return fmt.Errorf("%w (status %s)", ErrInvoiceNotSendable, inv.Status)
		}
		if inv.Status == InvoiceStatusSent {
			result = inv
			return nil
		}
		result, err = tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusSent, nil)
		if err != nil {
			return err
		}
		sent = true
		return audit(ctx, tx, "billing.invoice.send", "invoice", id, nil)
	})
	if err != nil {
		return Invoice{}, err
	}
	if sent {
		s.deps.notifyInvoice(ctx, EventInvoiceSent, result)
	}
	return result, nil
}

// MarkPaid forces an invoice to PAID regardless of recorded payments. An
// invoice that is already paid keeps its original paid date.
func (s *InvoiceService) MarkPaid(ctx context.Context, id int64) (Invoice, error) {
	var (
		result  Invoice
		flipped bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceStatusPaid {
			result = inv
			return nil
		}
		today := s.deps.today()
		result, err = tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusPaid, &today)
		if err != nil {
			return err
		}
		flipped = true
		return audit(ctx, tx, "billing.invoice.mark_paid", "invoice", id, map[string]any{
			"previous_status": string(inv.Status),
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	if flipped {
		s.deps.metrics.InvoicePaid(PaidManually)
		s.deps.notifyInvoice(ctx, EventInvoicePaid, result)
	}
	return result, nil
}

// CancelInvoice moves an invoice to CANCELLED from any state.
func (s *InvoiceService) CancelInvoice(ctx context.Context, id int64) (Invoice, error) {
	var result Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceStatusCancelled {
			result = inv
			return nil
		}
		result, err = tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusCancelled, inv.PaidDate)
		if err != nil {
			return err
		}
		return audit(ctx, tx, "billing.invoice.cancel", "invoice", id, map[string]any{
			"previous_status": string(inv.Status),
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return result, nil
}

// DeleteInvoice removes a draft invoice together with its items.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanDelete() {
			return fmt.Errorf("%w (status %s)", ErrInvoiceNotDraft, inv.Status)
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, "billing.invoice.delete", "invoice", id, map[string]any{
			"invoice_number": inv.InvoiceNumber,
		})
	})
}

// GetInvoice returns an invoice with its items.
func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// GetInvoiceByNumber looks an invoice up by its unique number.
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	return s.repo.GetInvoiceByNumber(ctx, strings.TrimSpace(number))
}

// ListInvoices returns a filtered page of invoices and the total match count.
func (s *InvoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	if err := checkRange("dueDate", filter.DueFrom, filter.DueTo); err != nil {
		return nil, 0, err
	}
	if err := checkRange("issueDate", filter.IssuedFrom, filter.IssuedTo); err != nil {
		return nil, 0, err
	}
	return s.repo.ListInvoices(ctx, filter)
}

// ListOverdue lists sent invoices whose due date has passed.
func (s *InvoiceService) ListOverdue(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	today := s.deps.today()
	filter.Status = InvoiceStatusSent
	filter.DueBefore = &today
	return s.repo.ListInvoices(ctx, filter)
}

// ListDueBetween lists invoices due within [start, end].
func (s *InvoiceService) ListDueBetween(ctx context.Context, start, end time.Time, filter InvoiceFilter) ([]Invoice, int, error) {
	filter.DueFrom, filter.DueTo = &start, &end
	return s.ListInvoices(ctx, filter)
}

// ListIssuedBetween lists invoices issued within [start, end].
func (s *InvoiceService) ListIssuedBetween(ctx context.Context, start, end time.Time, filter InvoiceFilter) ([]Invoice, int, error) {
	filter.IssuedFrom, filter.IssuedTo = &start, &end
	return s.ListInvoices(ctx, filter)
}

// TotalByAccountAndStatus sums invoice totals for one account in one status.
func (s *InvoiceService) TotalByAccountAndStatus(ctx context.Context, accountID int64, status InvoiceStatus) (decimal.Decimal, error) {
	if !status.Valid() {
		return decimal.Zero, shared.NewValidationError(map[string]string{"status": "must be one of DRAFT SENT PAID CANCELLED"})
	}
	return s.repo.SumInvoiceTotals(ctx, accountID, status)
}

// CountByAccount counts the invoices issued to an account.
func (s *InvoiceService) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	return s.repo.CountInvoicesByAccount(ctx, accountID)
}

func checkRange(field string, from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return shared.NewValidationError(map[string]string{field: "start date must not be after end date"})
	}
	return nil
}
