package billinghttp

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/billing/export"
	"github.com/odyssey-erp/billing/internal/platform/httpx"
)

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	inv, err := h.invoices.CreateInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) invoiceFilter(r *http.Request, params httpx.PageParams) (billing.InvoiceFilter, error) {
	accountID, err := queryInt64(r, "accountId")
	if err != nil {
		return billing.InvoiceFilter{}, err
	}
	return billing.InvoiceFilter{
		AccountID:     accountID,
		Status:        billing.InvoiceStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Search:        params.Search,
		Page:          params.Page,
		Size:          params.Size,
		SortBy:        params.SortBy,
		SortDirection: params.SortDirection,
	}, nil
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	params := httpx.ParsePageParams(r)
	filter, err := h.invoiceFilter(r, params)
	if err != nil {
		h.fail(w, r, "list invoices", err)
		return
	}
	invoices, total, err := h.invoices.ListInvoices(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list invoices", err)
		return
	}
	writePage(w, invoices, total, params, toInvoiceResponse)
}

func (h *Handler) invoicesByStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeId")
	if err != nil {
		h.fail(w, r, "invoices by store", err)
		return
	}
	params := httpx.ParsePageParams(r)
	filter, err := h.invoiceFilter(r, params)
	if err != nil {
		h.fail(w, r, "invoices by store", err)
		return
	}
	filter.StoreID = storeID
	invoices, total, err := h.invoices.ListInvoices(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "invoices by store", err)
		return
	}
	writePage(w, invoices, total, params, toInvoiceResponse)
}

func (h *Handler) overdueInvoices(w http.ResponseWriter, r *http.Request) {
	params := httpx.ParsePageParams(r)
	filter, err := h.invoiceFilter(r, params)
	if err != nil {
		h.fail(w, r, "overdue invoices", err)
		return
	}
	invoices, total, err := h.invoices.ListOverdue(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "overdue invoices", err)
		return
	}
	writePage(w, invoices, total, params, toInvoiceResponse)
}

func (h *Handler) invoicesDueBetween(w http.ResponseWriter, r *http.Request) {
	start, end, err := queryDateRange(r)
	if err != nil {
		h.fail(w, r, "invoices due between", err)
		return
	}
	params := httpx.ParsePageParams(r)
	filter, err := h.invoiceFilter(r, params)
	if err != nil {
		h.fail(w, r, "invoices due between", err)
		return
	}
	invoices, total, err := h.invoices.ListDueBetween(r.Context(), start, end, filter)
	if err != nil {
		h.fail(w, r, "invoices due between", err)
		return
	}
	writePage(w, invoices, total, params, toInvoiceResponse)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	inv, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) getInvoiceByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.GetInvoiceByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, r, "get invoice by number", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	inv, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	account, err := h.ledger.GetAccount(r.Context(), inv.BillingAccountID)
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	payments, _, err := h.payments.ListPayments(r.Context(), billing.PaymentFilter{InvoiceID: id, Size: -1, SortBy: "paymentDate", SortDirection: "asc"})
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	body, err := export.InvoicePDF(export.Document{
		Invoice:     inv,
		Account:     account,
		Payments:    payments,
		GeneratedAt: h.now(),
	})
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inv.InvoiceNumber+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) invoiceTotalByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountId")
	if err != nil {
		h.fail(w, r, "invoice total by account", err)
		return
	}
	status := billing.InvoiceStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	total, err := h.invoices.TotalByAccountAndStatus(r.Context(), accountID, status)
	if err != nil {
		h.fail(w, r, "invoice total by account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": accountID, "status": status, "total": money(total)})
}

func (h *Handler) invoiceCountByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountId")
	if err != nil {
		h.fail(w, r, "invoice count by account", err)
		return
	}
	count, err := h.invoices.CountByAccount(r.Context(), accountID)
	if err != nil {
		h.fail(w, r, "invoice count by account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": accountID, "count": count})
}

// transitionInvoice adapts a single-invoice state change to a handler.
func (h *Handler) transitionInvoice(op string, fn func(svc invoiceService, ctx context.Context, id int64) (billing.Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		inv, err := fn(h.invoices, r.Context(), id)
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func (h *Handler) reconcileInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "reconcile invoice", err)
		return
	}
	inv, changed, err := h.payments.Reconcile(r.Context(), id)
	if err != nil {
		h.fail(w, r, "reconcile invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": toInvoiceResponse(inv), "changed": changed})
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete invoice", err)
		return
	}
	if err := h.invoices.DeleteInvoice(r.Context(), id); err != nil {
		h.fail(w, r, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
