package billing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

// memoryRepo serializes transactions behind one mutex and commits by swapping
// in the transaction's copy of the state, so a failed unit of work leaves no
// trace.
type memoryRepo struct {
	mu    sync.Mutex
	state *memState
	// failOn makes the named TxRepository method fail, to exercise rollback.
	failOn string
}

type memState struct {
	nextID    int64
	stores    map[int64]string
	accounts  map[int64]Account
	invoices  map[int64]Invoice
	payments  map[int64]Payment
	sequences map[string]int64
	audits    []shared.AuditLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memState{
		stores:    map[int64]string{},
		accounts:  map[int64]Account{},
		invoices:  map[int64]Invoice{},
		payments:  map[int64]Payment{},
		sequences: map[string]int64{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:    s.nextID,
		stores:    make(map[int64]string, len(s.stores)),
		accounts:  make(map[int64]Account, len(s.accounts)),
		invoices:  make(map[int64]Invoice, len(s.invoices)),
		payments:  make(map[int64]Payment, len(s.payments)),
		sequences: make(map[string]int64, len(s.sequences)),
		audits:    append([]shared.AuditLog(nil), s.audits...),
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.invoices {
		v.Items = append([]InvoiceItem(nil), v.Items...)
		c.invoices[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (r *memoryRepo) addStore(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.state.id()
	r.state.stores[id] = name
	return id
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{s: work, failOn: r.failOn}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) snapshot() *memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (s *memState) account(id int64) (Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	a.StoreName = s.stores[a.StoreID]
	return a, nil
}

func (s *memState) invoice(id int64) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	acc := s.accounts[inv.BillingAccountID]
	inv.AccountName = acc.AccountName
	inv.StoreID = acc.StoreID
	inv.Items = append([]InvoiceItem(nil), inv.Items...)
	return inv, nil
}

func (s *memState) payment(id int64) (Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	p.InvoiceNumber = s.invoices[p.InvoiceID].InvoiceNumber
	return p, nil
}

func (s *memState) sumCompleted(match func(Payment) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.payments {
		if p.Status == PaymentStatusCompleted && match(p) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	start := page * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (r *memoryRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.account(id)
}

func (r *memoryRepo) ListAccounts(ctx context.Context, f AccountFilter) ([]Account, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for id := range r.state.accounts {
		a, _ := r.state.account(id)
		if f.StoreID > 0 && a.StoreID != f.StoreID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Search != "" && !containsFold(a.AccountName, f.Search) && !containsFold(a.StoreName, f.Search) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Page, f.Size), len(out), nil
}

func (r *memoryRepo) ListAccountsOverCreditLimit(ctx context.Context) ([]Account, error) {
	all, _, _ := r.ListAccounts(ctx, AccountFilter{})
	var out []Account
	for _, a := range all {
		if a.OverCreditLimit() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAccountsBelowThreshold(ctx context.Context, threshold decimal.Decimal) ([]Account, error) {
	all, _, _ := r.ListAccounts(ctx, AccountFilter{})
	var out []Account
	for _, a := range all {
		if a.Balance.LessThan(threshold) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountAccountsByStore(ctx context.Context, storeID int64) (int, error) {
	_, n, err := r.ListAccounts(ctx, AccountFilter{StoreID: storeID})
	return n, err
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.invoice(id)
}

func (r *memoryRepo) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, inv := range r.state.invoices {
		if inv.InvoiceNumber == number {
			return r.state.invoice(id)
		}
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (r *memoryRepo) ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for id := range r.state.invoices {
		inv, _ := r.state.invoice(id)
		switch {
		case f.AccountID > 0 && inv.BillingAccountID != f.AccountID,
			f.StoreID > 0 && inv.StoreID != f.StoreID,
			f.Status != "" && inv.Status != f.Status,
			f.DueFrom != nil && inv.DueDate.Before(*f.DueFrom),
			f.DueTo != nil && inv.DueDate.After(*f.DueTo),
			f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore),
			f.IssuedFrom != nil && inv.IssueDate.Before(*f.IssuedFrom),
			f.IssuedTo != nil && inv.IssueDate.After(*f.IssuedTo):
			continue
		}
		if f.Search != "" && !containsFold(inv.InvoiceNumber, f.Search) &&
			!containsFold(inv.Description, f.Search) && !containsFold(inv.AccountName, f.Search) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Page, f.Size), len(out), nil
}

func (r *memoryRepo) SumInvoiceTotals(ctx context.Context, accountID int64, status InvoiceStatus) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, inv := range r.state.invoices {
		if inv.BillingAccountID == accountID && inv.Status == status {
			sum = sum.Add(inv.TotalAmount)
		}
	}
	return sum, nil
}

func (r *memoryRepo) CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{s: r.state}).CountInvoicesByAccount(ctx, accountID)
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.payment(id)
}

func (r *memoryRepo) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for id := range r.state.payments {
		p, _ := r.state.payment(id)
		inv := r.state.invoices[p.InvoiceID]
		acc := r.state.accounts[inv.BillingAccountID]
		switch {
		case f.InvoiceID > 0 && p.InvoiceID != f.InvoiceID,
			f.AccountID > 0 && inv.BillingAccountID != f.AccountID,
			f.StoreID > 0 && acc.StoreID != f.StoreID,
			f.Status != "" && p.Status != f.Status,
			f.Method != "" && p.Method != f.Method,
			f.DateFrom != nil && p.PaymentDate.Before(*f.DateFrom),
			f.DateTo != nil && p.PaymentDate.After(*f.DateTo):
			continue
		}
		if f.Search != "" && !containsFold(p.Reference, f.Search) && !containsFold(p.Notes, f.Search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, f.Page, f.Size), len(out), nil
}

func (r *memoryRepo) SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.sumCompleted(func(p Payment) bool { return p.InvoiceID == invoiceID }), nil
}

func (r *memoryRepo) SumCompletedByAccount(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.sumCompleted(func(p Payment) bool {
		return r.state.invoices[p.InvoiceID].BillingAccountID == accountID
	}), nil
}

func (r *memoryRepo) SumCompletedByMethod(ctx context.Context, storeID int64) (map[PaymentMethod]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[PaymentMethod]decimal.Decimal{}
	for _, p := range r.state.payments {
		acc := r.state.accounts[r.state.invoices[p.InvoiceID].BillingAccountID]
		if p.Status != PaymentStatusCompleted || acc.StoreID != storeID {
			continue
		}
		out[p.Method] = out[p.Method].Add(p.Amount)
	}
	return out, nil
}

type memoryTx struct {
	s      *memState
	failOn string
}

var errInjected = errors.New("injected failure")

func (t *memoryTx) fail(method string) error {
	if t.failOn == method {
		return errInjected
	}
	return nil
}

func (t *memoryTx) StoreExists(ctx context.Context, storeID int64) (bool, error) {
	_, ok := t.s.stores[storeID]
	return ok, nil
}

func (t *memoryTx) InsertAccount(ctx context.Context, a Account) (Account, error) {
	if err := t.fail("InsertAccount"); err != nil {
		return Account{}, err
	}
	a.ID = t.s.id()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	t.s.accounts[a.ID] = a
	return t.s.account(a.ID)
}

func (t *memoryTx) GetAccount(ctx context.Context, id int64) (Account, error) {
	return t.s.account(id)
}

func (t *memoryTx) mutateAccount(id int64, fn func(*Account)) (Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now()
	t.s.accounts[id] = a
	return t.s.account(id)
}

func (t *memoryTx) AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) (Account, error) {
	if a, ok := t.s.accounts[id]; ok && a.Balance.Add(delta).Abs().GreaterThanOrEqual(decimal.New(1, moneyDigits)) {
		return Account{}, ErrBalanceOutOfRange
	}
	return t.mutateAccount(id, func(a *Account) { a.Balance = a.Balance.Add(delta) })
}

func (t *memoryTx) UpdateAccountCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (Account, error) {
	return t.mutateAccount(id, func(a *Account) { a.CreditLimit = limit })
}

func (t *memoryTx) UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) (Account, error) {
	return t.mutateAccount(id, func(a *Account) { a.Status = status })
}

func (t *memoryTx) DeleteAccount(ctx context.Context, id int64) error {
	if _, ok := t.s.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(t.s.accounts, id)
	return nil
}

func (t *memoryTx) CountInvoicesByAccount(ctx context.Context, accountID int64) (int, error) {
	n := 0
	for _, inv := range t.s.invoices {
		if inv.BillingAccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) NextInvoiceSequence(ctx context.Context, period string) (int64, error) {
	t.s.sequences[period]++
	return t.s.sequences[period], nil
}

func (t *memoryTx) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if err := t.fail("InsertInvoice"); err != nil {
		return Invoice{}, err
	}
	for _, existing := range t.s.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return Invoice{}, ErrDuplicateInvoiceNumber
		}
	}
	inv.ID = t.s.id()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	items := make([]InvoiceItem, len(inv.Items))
	for i, it := range inv.Items {
		it.ID = t.s.id()
		it.InvoiceID = inv.ID
		items[i] = it
	}
	inv.Items = items
	t.s.invoices[inv.ID] = inv
	return t.s.invoice(inv.ID)
}

func (t *memoryTx) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return t.s.invoice(id)
}

func (t *memoryTx) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, paidDate *time.Time) (Invoice, error) {
	if err := t.fail("UpdateInvoiceStatus"); err != nil {
		return Invoice{}, err
	}
	inv, ok := t.s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.Status = status
	inv.PaidDate = paidDate
	inv.UpdatedAt = time.Now()
	t.s.invoices[id] = inv
	return t.s.invoice(id)
}

func (t *memoryTx) DeleteInvoice(ctx context.Context, id int64) error {
	if _, ok := t.s.invoices[id]; !ok {
		return ErrInvoiceNotFound
	}
	delete(t.s.invoices, id)
	for pid, p := range t.s.payments {
		if p.InvoiceID == id {
			delete(t.s.payments, pid)
		}
	}
	return nil
}

func (t *memoryTx) SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	return t.s.sumCompleted(func(p Payment) bool { return p.InvoiceID == invoiceID }), nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	if err := t.fail("InsertPayment"); err != nil {
		return Payment{}, err
	}
	if _, ok := t.s.invoices[p.InvoiceID]; !ok {
		return Payment{}, ErrInvoiceNotFound
	}
	p.ID = t.s.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	t.s.payments[p.ID] = p
	return t.s.payment(p.ID)
}

func (t *memoryTx) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return t.s.payment(id)
}

func (t *memoryTx) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	t.s.payments[id] = p
	return t.s.payment(id)
}

func (t *memoryTx) DeletePayment(ctx context.Context, id int64) error {
	if _, ok := t.s.payments[id]; !ok {
		return ErrPaymentNotFound
	}
	delete(t.s.payments, id)
	return nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if err := t.fail("RecordAudit"); err != nil {
		return err
	}
	t.s.audits = append(t.s.audits, log)
	return nil
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ctx context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type countingRecorder struct {
	mu           sync.Mutex
	created      int
	overpayments int
	paid         map[string]int
}

func (c *countingRecorder) PaymentCreated(PaymentMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
}

func (c *countingRecorder) OverpaymentRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overpayments++
}

func (c *countingRecorder) InvoicePaid(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paid == nil {
		c.paid = map[string]int{}
	}
	c.paid[source]++
}

var (
	_ Repository   = (*memoryRepo)(nil)
	_ TxRepository = (*memoryTx)(nil)
)
