package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

// Repository exposes read queries and the transaction entry point.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, int, error)
	ListAccountsOverCreditLimit(ctx context.Context) ([]Account, error)
	ListAccountsBelowThreshold(ctx context.Context, threshold decimal.Decimal) ([]Account, error)
	CountAccountsByStore(ctx context.Context, storeID int64) (int, error)

	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error)
	SumInvoiceTotals(ctx context.Context, accountID int64, status InvoiceStatus) (decimal.Decimal, error)
	CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error)

	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
	SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SumCompletedByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	SumCompletedByMethod(ctx context.Context, storeID int64) (map[PaymentMethod]decimal.Decimal, error)
}

// TxRepository is the write side, valid only inside WithTx.
type TxRepository interface {
	StoreExists(ctx context.Context, storeID int64) (bool, error)
	InsertAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) (Account, error)
	UpdateAccountCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (Account, error)
	UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) (Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error)

	NextInvoiceSequence(ctx context.Context, period string) (int64, error)
	InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	// LockInvoice reads the invoice and holds its row lock until the transaction ends.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, paidDate *time.Time) (Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error

	SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	LockPayment(ctx context.Context, id int64) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Payment, error)
	DeletePayment(ctx context.Context, id int64) error

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}
