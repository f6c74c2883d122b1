package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/platform/db"
)

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL implementation of Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx runs fn at READ COMMITTED so a transaction that waited on an invoice
// row lock sees the payments committed by the previous holder.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const accountColumns = `a.id, a.store_id, COALESCE(s.name, ''), a.account_name, a.account_type, a.balance, a.credit_limit,
	a.currency, a.status, a.created_at, a.updated_at`

const accountFrom = ` FROM billing_accounts a LEFT JOIN stores s ON s.id = a.store_id`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.StoreID, &a.StoreName, &a.AccountName, &a.AccountType, &a.Balance, &a.CreditLimit,
		&a.Currency, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func getAccount(ctx context.Context, q querier, id int64) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+accountFrom+` WHERE a.id = $1`, id))
}

func (r *pgRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.pool, id)
}

var accountSorts = map[string]string{
	"id":          "a.id",
	"accountName": "a.account_name",
	"balance":     "a.balance",
	"creditLimit": "a.credit_limit",
	"status":      "a.status",
	"createdAt":   "a.created_at",
}

func (r *pgRepository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, int, error) {
	var where whereBuilder
	if filter.StoreID > 0 {
		where.add("a.store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		where.add("a.status = $%d", string(filter.Status))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where.add("(a.account_name ILIKE '%%' || $%[1]d || '%%' OR s.name ILIKE '%%' || $%[1]d || '%%')", s)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+accountFrom+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count accounts: %w", err)
	}
	query := `SELECT ` + accountColumns + accountFrom + where.sql() +
		orderBy(accountSorts, filter.SortBy, filter.SortDirection, "a.created_at", "a.id") +
		where.page(filter.Page, filter.Size)
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list accounts: %w", err)
	}
	accounts, err := collectAccounts(rows)
	return accounts, total, err
}

func (r *pgRepository) ListAccountsOverCreditLimit(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+accountFrom+
		` WHERE a.account_type = 'CREDIT' AND a.balance > a.credit_limit ORDER BY a.balance - a.credit_limit DESC, a.id`)
	if err != nil {
		return nil, fmt.Errorf("billing: list over limit: %w", err)
	}
	return collectAccounts(rows)
}

func (r *pgRepository) ListAccountsBelowThreshold(ctx context.Context, threshold decimal.Decimal) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+accountFrom+
		` WHERE a.balance < $1 ORDER BY a.balance, a.id`, threshold)
	if err != nil {
		return nil, fmt.Errorf("billing: list below threshold: %w", err)
	}
	return collectAccounts(rows)
}

func (r *pgRepository) CountAccountsByStore(ctx context.Context, storeID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM billing_accounts WHERE store_id = $1`, storeID).Scan(&n)
	return n, err
}

const invoiceColumns = `i.id, i.invoice_number, i.billing_account_id, a.account_name, a.store_id, i.amount, i.tax_amount,
	i.total_amount, i.status, i.issue_date, i.due_date, i.paid_date, COALESCE(i.description, ''), i.created_at, i.updated_at`

const invoiceFrom = ` FROM invoices i JOIN billing_accounts a ON a.id = i.billing_account_id`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.BillingAccountID, &inv.AccountName, &inv.StoreID, &inv.Amount,
		&inv.TaxAmount, &inv.TotalAmount, &inv.Status, &inv.IssueDate, &inv.DueDate, &inv.PaidDate, &inv.Description,
		&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

func loadItems(ctx context.Context, q querier, inv *Invoice) error {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, description, quantity, unit_price, total_price
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, inv.ID)
	if err != nil {
		return fmt.Errorf("billing: load items: %w", err)
	}
	defer rows.Close()
	inv.Items = inv.Items[:0]
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
	}
	return rows.Err()
}

func getInvoice(ctx context.Context, q querier, clause string, arg any) (Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+invoiceFrom+` WHERE `+clause, arg))
	if err != nil {
		return Invoice{}, err
	}
	if err := loadItems(ctx, q, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.pool, "i.id = $1", id)
}

func (r *pgRepository) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	return getInvoice(ctx, r.pool, "i.invoice_number = $1", number)
}

var invoiceSorts = map[string]string{
	"id":            "i.id",
	"invoiceNumber": "i.invoice_number",
	"totalAmount":   "i.total_amount",
	"status":        "i.status",
	"issueDate":     "i.issue_date",
	"dueDate":       "i.due_date",
	"createdAt":     "i.created_at",
}

func (r *pgRepository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error) {
	var where whereBuilder
	if filter.AccountID > 0 {
		where.add("i.billing_account_id = $%d", filter.AccountID)
	}
	if filter.StoreID > 0 {
		where.add("a.store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		where.add("i.status = $%d", string(filter.Status))
	}
	if filter.DueFrom != nil {
		where.add("i.due_date >= $%d", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		where.add("i.due_date <= $%d", *filter.DueTo)
	}
	if filter.DueBefore != nil {
		where.add("i.due_date < $%d", *filter.DueBefore)
	}
	if filter.IssuedFrom != nil {
		where.add("i.issue_date >= $%d", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		where.add("i.issue_date <= $%d", *filter.IssuedTo)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where.add("(i.invoice_number ILIKE '%%' || $%[1]d || '%%' OR i.description ILIKE '%%' || $%[1]d || '%%' OR a.account_name ILIKE '%%' || $%[1]d || '%%')", s)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+invoiceFrom+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count invoices: %w", err)
	}
	query := `SELECT ` + invoiceColumns + invoiceFrom + where.sql() +
		orderBy(invoiceSorts, filter.SortBy, filter.SortDirection, "i.created_at", "i.id") +
		where.page(filter.Page, filter.Size)
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) SumInvoiceTotals(ctx context.Context, accountID int64, status InvoiceStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM invoices
		WHERE billing_account_id = $1 AND status = $2`, accountID, string(status)).Scan(&sum)
	return sum, err
}

func countInvoicesByAccount(ctx context.Context, q querier, accountID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE billing_account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (r *pgRepository) CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error) {
	return countInvoicesByAccount(ctx, r.pool, accountID)
}

const paymentColumns = `p.id, p.invoice_id, i.invoice_number, p.amount, p.payment_method, COALESCE(p.payment_reference, ''),
	p.payment_date, p.status, COALESCE(p.notes, ''), p.created_at, p.updated_at`

const paymentFrom = ` FROM payments p JOIN invoices i ON i.id = p.invoice_id JOIN billing_accounts a ON a.id = i.billing_account_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.InvoiceNumber, &p.Amount, &p.Method, &p.Reference,
		&p.PaymentDate, &p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *pgRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+paymentFrom+` WHERE p.id = $1`, id))
}

var paymentSorts = map[string]string{
	"id":          "p.id",
	"amount":      "p.amount",
	"paymentDate": "p.payment_date",
	"status":      "p.status",
	"createdAt":   "p.created_at",
}

func (r *pgRepository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error) {
	var where whereBuilder
	if filter.InvoiceID > 0 {
		where.add("p.invoice_id = $%d", filter.InvoiceID)
	}
	if filter.AccountID > 0 {
		where.add("i.billing_account_id = $%d", filter.AccountID)
	}
	if filter.StoreID > 0 {
		where.add("a.store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		where.add("p.status = $%d", string(filter.Status))
	}
	if filter.Method != "" {
		where.add("p.payment_method = $%d", string(filter.Method))
	}
	if filter.DateFrom != nil {
		where.add("p.payment_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("p.payment_date <= $%d", *filter.DateTo)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where.add("(p.payment_reference ILIKE '%%' || $%[1]d || '%%' OR p.notes ILIKE '%%' || $%[1]d || '%%')", s)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+paymentFrom+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count payments: %w", err)
	}
	query := `SELECT ` + paymentColumns + paymentFrom + where.sql() +
		orderBy(paymentSorts, filter.SortBy, filter.SortDirection, "p.created_at", "p.id") +
		where.page(filter.Page, filter.Size)
	rows, err := r.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list payments: %w", err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func sumCompletedByInvoice(ctx context.Context, q querier, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE invoice_id = $1 AND status = 'COMPLETED'`, invoiceID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("billing: sum completed payments: %w", err)
	}
	return sum, nil
}

func (r *pgRepository) SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	return sumCompletedByInvoice(ctx, r.pool, invoiceID)
}

func (r *pgRepository) SumCompletedByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(p.amount), 0) FROM payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE i.billing_account_id = $1 AND p.status = 'COMPLETED'`, accountID).Scan(&sum)
	return sum, err
}

func (r *pgRepository) SumCompletedByMethod(ctx context.Context, storeID int64) (map[PaymentMethod]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.payment_method, COALESCE(SUM(p.amount), 0) FROM payments p
		JOIN invoices i ON i.id = p.invoice_id
		JOIN billing_accounts a ON a.id = i.billing_account_id
		WHERE a.store_id = $1 AND p.status = 'COMPLETED'
		GROUP BY p.payment_method`, storeID)
	if err != nil {
		return nil, fmt.Errorf("billing: sum payments by method: %w", err)
	}
	defer rows.Close()
	out := make(map[PaymentMethod]decimal.Decimal)
	for rows.Next() {
		var (
			method PaymentMethod
			sum    decimal.Decimal
		)
		if err := rows.Scan(&method, &sum); err != nil {
			return nil, err
		}
		out[method] = sum
	}
	return out, rows.Err()
}

// whereBuilder accumulates positional filter clauses.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends clause, whose %d verbs all refer to the new argument's position.
func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page renders LIMIT/OFFSET. A non-positive size returns every row.
func (w *whereBuilder) page(page, size int) string {
	if size <= 0 {
		return ""
	}
	if page < 0 {
		page = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, page*size)
}

func orderBy(allowed map[string]string, sortBy, direction, fallback, tiebreak string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = fallback
	}
	dir := "DESC"
	if strings.EqualFold(direction, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s", column, dir, tiebreak, dir)
}
