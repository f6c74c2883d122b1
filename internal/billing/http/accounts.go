package billinghttp

import (
	"net/http"
	"strings"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/platform/httpx"
	"github.com/odyssey-erp/billing/internal/shared"
)

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, "create billing account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	params := httpx.ParsePageParams(r)
	storeID, err := queryInt64(r, "storeId")
	if err != nil {
		h.fail(w, r, "list billing accounts", err)
		return
	}
	filter := billing.AccountFilter{
		StoreID:       storeID,
		Status:        billing.AccountStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Search:        params.Search,
		Page:          params.Page,
		Size:          params.Size,
		SortBy:        params.SortBy,
		SortDirection: params.SortDirection,
	}
	accounts, total, err := h.ledger.ListAccounts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list billing accounts", err)
		return
	}
	writePage(w, accounts, total, params, toAccountResponse)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "get billing account", err)
		return
	}
	account, err := h.ledger.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get billing account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) accountsByStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeId")
	if err != nil {
		h.fail(w, r, "billing accounts by store", err)
		return
	}
	accounts, err := h.ledger.AccountsByStore(r.Context(), storeID)
	if err != nil {
		h.fail(w, r, "billing accounts by store", err)
		return
	}
	writeList(w, accounts, toAccountResponse)
}

func (h *Handler) countAccountsByStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeId")
	if err != nil {
		h.fail(w, r, "count billing accounts", err)
		return
	}
	count, err := h.ledger.CountAccountsByStore(r.Context(), storeID)
	if err != nil {
		h.fail(w, r, "count billing accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"storeId": storeID, "count": count})
}

func (h *Handler) accountsOverLimit(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.AccountsOverCreditLimit(r.Context())
	if err != nil {
		h.fail(w, r, "billing accounts over limit", err)
		return
	}
	writeList(w, accounts, toAccountResponse)
}

func (h *Handler) accountsLowBalance(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryDecimal(r, "threshold")
	if err != nil {
		h.fail(w, r, "billing accounts low balance", err)
		return
	}
	accounts, err := h.ledger.AccountsBelowThreshold(r.Context(), threshold)
	if err != nil {
		h.fail(w, r, "billing accounts low balance", err)
		return
	}
	writeList(w, accounts, toAccountResponse)
}

func (h *Handler) accountPaymentTotal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "billing account payment total", err)
		return
	}
	total, err := h.payments.TotalCompletedForAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "billing account payment total", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": id, "totalCompleted": money(total)})
}

func (h *Handler) setAccountStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "set billing account status", err)
		return
	}
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if raw == "" {
		h.fail(w, r, "set billing account status", shared.NewValidationError(map[string]string{"status": "is required"}))
		return
	}
	account, err := h.ledger.SetStatus(r.Context(), id, billing.AccountStatus(raw))
	if err != nil {
		h.fail(w, r, "set billing account status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) setCreditLimit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "set credit limit", err)
		return
	}
	limit, err := queryDecimal(r, "creditLimit")
	if err != nil {
		h.fail(w, r, "set credit limit", err)
		return
	}
	account, err := h.ledger.SetCreditLimit(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, "set credit limit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) adjustBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "adjust balance", err)
		return
	}
	delta, err := queryDecimal(r, "amount")
	if err != nil {
		h.fail(w, r, "adjust balance", err)
		return
	}
	account, err := h.ledger.AdjustBalance(r.Context(), id, delta)
	if err != nil {
		h.fail(w, r, "adjust balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "delete billing account", err)
		return
	}
	if err := h.ledger.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, "delete billing account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
