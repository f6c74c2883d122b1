package billinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/platform/httpx"
	"github.com/odyssey-erp/billing/internal/shared"
)

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, "create payment", err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, paymentIdempotencyScope); err != nil {
			if isIdempotencyConflict(err) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "a payment with this Idempotency-Key was already submitted")
				return
			}
			h.fail(w, r, "claim idempotency key", err)
			return
		}
	}

	payment, err := h.payments.CreatePayment(r.Context(), in)
	if err != nil {
		if key != "" && h.idem != nil {
			// Release the key so the client can retry after fixing the request.
			if derr := h.idem.Delete(context.WithoutCancel(r.Context()), key, paymentIdempotencyScope); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, r, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) paymentFilter(r *http.Request, params httpx.PageParams) (billing.PaymentFilter, error) {
	invoiceID, err := queryInt64(r, "invoiceId")
	if err != nil {
		return billing.PaymentFilter{}, err
	}
	q := r.URL.Query()
	return billing.PaymentFilter{
		InvoiceID:     invoiceID,
		Status:        billing.PaymentStatus(strings.ToUpper(q.Get("status"))),
		Method:        billing.PaymentMethod(strings.ToUpper(q.Get("paymentMethod"))),
		Search:        params.Search,
		Page:          params.Page,
		Size:          params.Size,
		SortBy:        params.SortBy,
		SortDirection: params.SortDirection,
	}, nil
}

func (h *Handler) listPaymentsWith(w http.ResponseWriter, r *http.Request, op string, adjust func(*billing.PaymentFilter) error) {
	params := httpx.ParsePageParams(r)
	filter, err := h.paymentFilter(r, params)
	if err == nil && adjust != nil {
		err = adjust(&filter)
	}
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	payments, total, err := h.payments.ListPayments(r.Context(), filter)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	writePage(w, payments, total, params, toPaymentResponse)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	h.listPaymentsWith(w, r, "list payments", nil)
}

func (h *Handler) paymentsByInvoice(w http.ResponseWriter, r *http.Request) {
	h.listPaymentsWith(w, r, "payments by invoice", func(f *billing.PaymentFilter) error {
		id, err := pathID(r, "invoiceId")
		f.InvoiceID = id
		return err
	})
}

func (h *Handler) paymentsByStore(w http.ResponseWriter, r *http.Request) {
	h.listPaymentsWith(w, r, "payments by store", func(f *billing.PaymentFilter) error {
		id, err := pathID(r, "storeId")
		f.StoreID = id
		return err
	})
}

func (h *Handler) paymentsInRange(w http.ResponseWriter, r *http.Request) {
	h.listPaymentsWith(w, r, "payments in date range", func(f *billing.PaymentFilter) error {
		start, end, err := queryDateRange(r)
		f.DateFrom, f.DateTo = &start, &end
		return err
	})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "get payment", err)
		return
	}
	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) paymentTotalByInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "invoiceId")
	if err != nil {
		h.fail(w, r, "payment total by invoice", err)
		return
	}
	total, err := h.payments.TotalCompletedForInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, "payment total by invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoiceId": id, "totalCompleted": money(total)})
}

func (h *Handler) paymentTotalsByMethod(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeId")
	if err != nil {
		h.fail(w, r, "payment totals by method", err)
		return
	}
	totals, err := h.payments.TotalsByMethod(r.Context(), storeID)
	if err != nil {
		h.fail(w, r, "payment totals by method", err)
		return
	}
	out := make(map[string]string, len(totals))
	for method, sum := range totals {
		out[string(method)] = money(sum)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"storeId": storeID, "totals": out})
}

// transitionPayment adapts a single-payment status change to a handler.
func (h *Handler) transitionPayment(op string, fn func(svc paymentService, ctx context.Context, id int64) (billing.Payment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		payment, err := fn(h.payments, r.Context(), id)
		if err != nil {
			h.fail(w, r, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
	}
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}
	if err := h.payments.DeletePayment(r.Context(), id); err != nil {
		h.fail(w, r, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var _ idempotencyStore = (*shared.IdempotencyStore)(nil)
