package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/platform/db"
	"github.com/odyssey-erp/billing/internal/shared"
)

const invoiceNumberConstraint = "invoices_invoice_number_key"

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) StoreExists(ctx context.Context, storeID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stores WHERE id = $1)`, storeID).Scan(&exists)
	return exists, err
}

func (r *pgTxRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO billing_accounts
		(store_id, account_name, account_type, balance, credit_limit, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		a.StoreID, a.AccountName, string(a.AccountType), a.Balance, a.CreditLimit, a.Currency, string(a.Status)).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Account{}, ErrStoreNotFound
		}
		return Account{}, fmt.Errorf("billing: insert account: %w", err)
	}
	return getAccount(ctx, r.tx, id)
}

func (r *pgTxRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.tx, id)
}

// AdjustAccountBalance increments in a single statement so concurrent
// adjustments on the same account never lose an update.
func (r *pgTxRepository) AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) (Account, error) {
	acc, err := r.updateAccount(ctx, id, `UPDATE billing_accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, delta)
	if db.IsNumericOverflow(err) {
		return Account{}, ErrBalanceOutOfRange
	}
	return acc, err
}

func (r *pgTxRepository) UpdateAccountCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (Account, error) {
	return r.updateAccount(ctx, id, `UPDATE billing_accounts SET credit_limit = $2, updated_at = NOW() WHERE id = $1`, limit)
}

func (r *pgTxRepository) UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) (Account, error) {
	return r.updateAccount(ctx, id, `UPDATE billing_accounts SET status = $2, updated_at = NOW() WHERE id = $1`, string(status))
}

func (r *pgTxRepository) updateAccount(ctx context.Context, id int64, stmt string, arg any) (Account, error) {
	tag, err := r.tx.Exec(ctx, stmt, id, arg)
	if err != nil {
		return Account{}, fmt.Errorf("billing: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Account{}, ErrAccountNotFound
	}
	return getAccount(ctx, r.tx, id)
}

func (r *pgTxRepository) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM billing_accounts WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrAccountHasInvoices
		}
		return fmt.Errorf("billing: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *pgTxRepository) CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error) {
	return countInvoicesByAccount(ctx, r.tx, accountID)
}

// NextInvoiceSequence increments the counter row for period. The row stays
// locked until commit, so callers draw numbers in a short transaction of
// their own.
func (r *pgTxRepository) NextInvoiceSequence(ctx context.Context, period string) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (period, last_value, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (period) DO UPDATE SET last_value = invoice_sequences.last_value + 1, updated_at = NOW()
		RETURNING last_value`, period).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("billing: next invoice sequence: %w", err)
	}
	return next, nil
}

func (r *pgTxRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices
		(invoice_number, billing_account_id, amount, tax_amount, total_amount, status, issue_date, due_date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NOW(), NOW()) RETURNING id`,
		inv.InvoiceNumber, inv.BillingAccountID, inv.Amount, inv.TaxAmount, inv.TotalAmount, string(inv.Status),
		inv.IssueDate, inv.DueDate, inv.Description).Scan(&id)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, invoiceNumberConstraint):
			return Invoice{}, fmt.Errorf("%w: %s", ErrDuplicateInvoiceNumber, inv.InvoiceNumber)
		case db.IsForeignKeyViolation(err):
			return Invoice{}, ErrAccountNotFound
		}
		return Invoice{}, fmt.Errorf("billing: insert invoice: %w", err)
	}
	if len(inv.Items) > 0 {
		batch := &pgx.Batch{}
		for _, it := range inv.Items {
			batch.Queue(`INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total_price, created_at)
				VALUES ($1, $2, $3, $4, $5, NOW())`, id, it.Description, it.Quantity, it.UnitPrice, it.TotalPrice)
		}
		if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
			return Invoice{}, fmt.Errorf("billing: insert invoice items: %w", err)
		}
	}
	return getInvoice(ctx, r.tx, "i.id = $1", id)
}

func (r *pgTxRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.tx, "i.id = $1 FOR UPDATE OF i", id)
}

func (r *pgTxRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, paidDate *time.Time) (Invoice, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status = $2, paid_date = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), paidDate)
	if err != nil {
		return Invoice{}, fmt.Errorf("billing: update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Invoice{}, ErrInvoiceNotFound
	}
	return getInvoice(ctx, r.tx, "i.id = $1", id)
}

func (r *pgTxRepository) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("billing: delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgTxRepository) SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	return sumCompletedByInvoice(ctx, r.tx, invoiceID)
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments
		(invoice_id, amount, payment_method, payment_reference, payment_date, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NOW(), NOW()) RETURNING id`,
		p.InvoiceID, p.Amount, string(p.Method), p.Reference, p.PaymentDate, string(p.Status), p.Notes).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Payment{}, ErrInvoiceNotFound
		}
		return Payment{}, fmt.Errorf("billing: insert payment: %w", err)
	}
	return r.getPayment(ctx, id, "")
}

func (r *pgTxRepository) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return r.getPayment(ctx, id, " FOR UPDATE OF p")
}

func (r *pgTxRepository) getPayment(ctx context.Context, id int64, lock string) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+paymentFrom+` WHERE p.id = $1`+lock, id))
}

func (r *pgTxRepository) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Payment, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return Payment{}, fmt.Errorf("billing: update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Payment{}, ErrPaymentNotFound
	}
	return r.getPayment(ctx, id, "")
}

func (r *pgTxRepository) DeletePayment(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("billing: delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if err := shared.RecordAudit(ctx, r.tx, log); err != nil {
		return fmt.Errorf("billing: audit: %w", err)
	}
	return nil
}
