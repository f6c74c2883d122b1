package billinghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/platform/httpx"
	"github.com/odyssey-erp/billing/internal/rbac"
	"github.com/odyssey-erp/billing/internal/shared"
)

type ledgerService interface {
	CreateAccount(ctx context.Context, in billing.CreateAccountInput) (billing.Account, error)
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (billing.Account, error)
	SetCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (billing.Account, error)
	SetStatus(ctx context.Context, id int64, status billing.AccountStatus) (billing.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	GetAccount(ctx context.Context, id int64) (billing.Account, error)
	ListAccounts(ctx context.Context, filter billing.AccountFilter) ([]billing.Account, int, error)
	AccountsByStore(ctx context.Context, storeID int64) ([]billing.Account, error)
	AccountsOverCreditLimit(ctx context.Context) ([]billing.Account, error)
	AccountsBelowThreshold(ctx context.Context, threshold decimal.Decimal) ([]billing.Account, error)
	CountAccountsByStore(ctx context.Context, storeID int64) (int, error)
}

type invoiceService interface {
	CreateInvoice(ctx context.Context, in billing.CreateInvoiceInput) (billing.Invoice, error)
	SendInvoice(ctx context.Context, id int64) (billing.Invoice, error)
	MarkPaid(ctx context.Context, id int64) (billing.Invoice, error)
	CancelInvoice(ctx context.Context, id int64) (billing.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	GetInvoice(ctx context.Context, id int64) (billing.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (billing.Invoice, error)
	ListInvoices(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error)
	ListOverdue(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int, error)
	ListDueBetween(ctx context.Context, start, end time.Time, filter billing.InvoiceFilter) ([]billing.Invoice, int, error)
	TotalByAccountAndStatus(ctx context.Context, accountID int64, status billing.InvoiceStatus) (decimal.Decimal, error)
	CountByAccount(ctx context.Context, accountID int64) (int, error)
}

type paymentService interface {
	CreatePayment(ctx context.Context, in billing.CreatePaymentInput) (billing.Payment, error)
	CompletePayment(ctx context.Context, id int64) (billing.Payment, error)
	FailPayment(ctx context.Context, id int64) (billing.Payment, error)
	RefundPayment(ctx context.Context, id int64) (billing.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	Reconcile(ctx context.Context, invoiceID int64) (billing.Invoice, bool, error)
	GetPayment(ctx context.Context, id int64) (billing.Payment, error)
	ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, int, error)
	TotalCompletedForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	TotalCompletedForAccount(ctx context.Context, accountID int64) (decimal.Decimal, error)
	TotalsByMethod(ctx context.Context, storeID int64) (map[billing.PaymentMethod]decimal.Decimal, error)
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

const paymentIdempotencyScope = "payments.create"

// Handler wires the billing REST API.
type Handler struct {
	logger   *slog.Logger
	ledger   ledgerService
	invoices invoiceService
	payments paymentService
	idem     idempotencyStore
	rbac     rbac.Middleware
	now      func() time.Time
}

// NewHandler constructs a billing HTTP handler. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, ledger ledgerService, invoices invoiceService, payments paymentService, idem idempotencyStore, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		ledger:   ledger,
		invoices: invoices,
		payments: payments,
		idem:     idem,
		rbac:     rbac,
		now:      time.Now,
	}
}

// MountRoutes registers HTTP routes under /api/billing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/billing", func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Route("/accounts", h.accountRoutes)
		r.Route("/invoices", h.invoiceRoutes)
		r.Route("/payments", h.paymentRoutes)
	})
}

func (h *Handler) accountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ActionCreate, rbac.ResourceAccount)).Post("/", h.createAccount)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourceAccount))
		r.Get("/", h.listAccounts)
		r.Get("/over-limit", h.accountsOverLimit)
		r.Get("/low-balance", h.accountsLowBalance)
		r.Get("/store/{storeId}", h.accountsByStore)
		r.Get("/store/{storeId}/count", h.countAccountsByStore)
		r.Get("/{id}", h.getAccount)
		r.Get("/{id}/payments/total", h.accountPaymentTotal)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionAdjust, rbac.ResourceAccount))
		r.Patch("/{id}/status", h.setAccountStatus)
		r.Patch("/{id}/credit-limit", h.setCreditLimit)
		r.Patch("/{id}/balance", h.adjustBalance)
	})
	r.With(h.rbac.Require(rbac.ActionDelete, rbac.ResourceAccount)).Delete("/{id}", h.deleteAccount)
}

func (h *Handler) invoiceRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ActionCreate, rbac.ResourceInvoice)).Post("/", h.createInvoice)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourceInvoice))
		r.Get("/", h.listInvoices)
		r.Get("/overdue", h.overdueInvoices)
		r.Get("/due-between", h.invoicesDueBetween)
		r.Get("/number/{number}", h.getInvoiceByNumber)
		r.Get("/store/{storeId}", h.invoicesByStore)
		r.Get("/account/{accountId}/total", h.invoiceTotalByAccount)
		r.Get("/account/{accountId}/count", h.invoiceCountByAccount)
		r.Get("/{id}", h.getInvoice)
		r.Get("/{id}/pdf", h.invoicePDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourceInvoice))
		r.Patch("/{id}/send", h.transitionInvoice("send invoice", invoiceService.SendInvoice))
		r.Patch("/{id}/paid", h.transitionInvoice("mark invoice paid", invoiceService.MarkPaid))
		r.Patch("/{id}/cancel", h.transitionInvoice("cancel invoice", invoiceService.CancelInvoice))
		r.Patch("/{id}/reconcile", h.reconcileInvoice)
	})
	r.With(h.rbac.Require(rbac.ActionDelete, rbac.ResourceInvoice)).Delete("/{id}", h.deleteInvoice)
}

func (h *Handler) paymentRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ActionCreate, rbac.ResourcePayment)).Post("/", h.createPayment)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionRead, rbac.ResourcePayment))
		r.Get("/", h.listPayments)
		r.Get("/date-range", h.paymentsInRange)
		r.Get("/invoice/{invoiceId}", h.paymentsByInvoice)
		r.Get("/invoice/{invoiceId}/total", h.paymentTotalByInvoice)
		r.Get("/store/{storeId}", h.paymentsByStore)
		r.Get("/store/{storeId}/by-method", h.paymentTotalsByMethod)
		r.Get("/{id}", h.getPayment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ActionUpdate, rbac.ResourcePayment))
		r.Patch("/{id}/complete", h.transitionPayment("complete payment", paymentService.CompletePayment))
		r.Patch("/{id}/fail", h.transitionPayment("fail payment", paymentService.FailPayment))
		r.Patch("/{id}/refund", h.transitionPayment("refund payment", paymentService.RefundPayment))
	})
	r.With(h.rbac.Require(rbac.ActionDelete, rbac.ResourcePayment)).Delete("/{id}", h.deletePayment)
}

// fail writes err as problem details, logging anything that is not the
// caller's fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError(map[string]string{name: "must be a positive integer"})
	}
	return id, nil
}

func queryDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return decimal.Zero, shared.NewValidationError(map[string]string{name: "is required"})
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, shared.NewValidationError(map[string]string{name: "must be a decimal number"})
	}
	return d, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, shared.NewValidationError(map[string]string{name: "must be a positive integer"})
	}
	return v, nil
}

// queryDateRange reads startDate and endDate. Both are required.
func queryDateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	fields := map[string]string{}
	parse := func(name string) time.Time {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			fields[name] = "is required"
			return time.Time{}
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			fields[name] = fmt.Sprintf("must be a date formatted as %s", dateLayout)
		}
		return t
	}
	start, end := parse("startDate"), parse("endDate")
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, shared.NewValidationError(fields)
	}
	return start, end, nil
}

func writePage[T, R any](w http.ResponseWriter, items []T, total int, params httpx.PageParams, fn func(T) R) {
	httpx.JSON(w, http.StatusOK, shared.NewPage(mapSlice(items, fn), params.Page, params.Size, total))
}

func writeList[T, R any](w http.ResponseWriter, items []T, fn func(T) R) {
	httpx.JSON(w, http.StatusOK, mapSlice(items, fn))
}

func isIdempotencyConflict(err error) bool {
	return errors.Is(err, shared.ErrIdempotencyConflict)
}
