package billinghttp

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/billing"
	"github.com/odyssey-erp/billing/internal/shared"
)

const dateLayout = "2006-01-02"

type createAccountRequest struct {
	StoreID        int64            `json:"storeId"`
	AccountName    string           `json:"accountName"`
	AccountType    string           `json:"accountType"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
	CreditLimit    *decimal.Decimal `json:"creditLimit"`
	Currency       string           `json:"currency"`
}

func (r createAccountRequest) toInput() billing.CreateAccountInput {
	return billing.CreateAccountInput{
		StoreID:        r.StoreID,
		AccountName:    r.AccountName,
		AccountType:    billing.AccountType(strings.ToUpper(strings.TrimSpace(r.AccountType))),
		InitialBalance: decimalOrZero(r.InitialBalance),
		CreditLimit:    decimalOrZero(r.CreditLimit),
		Currency:       strings.ToUpper(strings.TrimSpace(r.Currency)),
	}
}

type createInvoiceRequest struct {
	BillingAccountID int64                `json:"billingAccountId"`
	Amount           *decimal.Decimal     `json:"amount"`
	TaxAmount        *decimal.Decimal     `json:"taxAmount"`
	DueDate          string               `json:"dueDate"`
	Description      string               `json:"description"`
	Items            []invoiceItemRequest `json:"items"`
}

type invoiceItemRequest struct {
	Description string           `json:"description"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
}

func (r createInvoiceRequest) toInput() (billing.CreateInvoiceInput, error) {
	due, err := parseDate("dueDate", r.DueDate)
	if err != nil {
		return billing.CreateInvoiceInput{}, err
	}
	in := billing.CreateInvoiceInput{
		BillingAccountID: r.BillingAccountID,
		Amount:           decimalOrZero(r.Amount),
		TaxAmount:        decimalOrZero(r.TaxAmount),
		DueDate:          due,
		Description:      r.Description,
		Items:            make([]billing.InvoiceItemInput, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		qty := decimal.NewFromInt(1)
		if item.Quantity != nil {
			qty = *item.Quantity
		}
		in.Items = append(in.Items, billing.InvoiceItemInput{
			Description: item.Description,
			Quantity:    qty,
			UnitPrice:   decimalOrZero(item.UnitPrice),
		})
	}
	return in, nil
}

type createPaymentRequest struct {
	InvoiceID        int64            `json:"invoiceId"`
	Amount           *decimal.Decimal `json:"amount"`
	PaymentMethod    string           `json:"paymentMethod"`
	PaymentReference string           `json:"paymentReference"`
	PaymentDate      string           `json:"paymentDate"`
	Notes            string           `json:"notes"`
}

func (r createPaymentRequest) toInput() (billing.CreatePaymentInput, error) {
	date, err := parseDate("paymentDate", r.PaymentDate)
	if err != nil {
		return billing.CreatePaymentInput{}, err
	}
	return billing.CreatePaymentInput{
		InvoiceID:   r.InvoiceID,
		Amount:      decimalOrZero(r.Amount),
		Method:      billing.PaymentMethod(strings.ToUpper(strings.TrimSpace(r.PaymentMethod))),
		Reference:   r.PaymentReference,
		PaymentDate: date,
		Notes:       r.Notes,
	}, nil
}

type accountResponse struct {
	ID          int64  `json:"id"`
	StoreID     int64  `json:"storeId"`
	StoreName   string `json:"storeName,omitempty"`
	AccountName string `json:"accountName"`
	AccountType string `json:"accountType"`
	Balance     string `json:"balance"`
	CreditLimit string `json:"creditLimit"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func toAccountResponse(a billing.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		StoreID:     a.StoreID,
		StoreName:   a.StoreName,
		AccountName: a.AccountName,
		AccountType: string(a.AccountType),
		Balance:     money(a.Balance),
		CreditLimit: money(a.CreditLimit),
		Currency:    a.Currency,
		Status:      string(a.Status),
		CreatedAt:   timestamp(a.CreatedAt),
		UpdatedAt:   timestamp(a.UpdatedAt),
	}
}

type invoiceResponse struct {
	ID               int64                 `json:"id"`
	InvoiceNumber    string                `json:"invoiceNumber"`
	BillingAccountID int64                 `json:"billingAccountId"`
	AccountName      string                `json:"accountName,omitempty"`
	StoreID          int64                 `json:"storeId,omitempty"`
	Amount           string                `json:"amount"`
	TaxAmount        string                `json:"taxAmount"`
	TotalAmount      string                `json:"totalAmount"`
	Status           string                `json:"status"`
	IssueDate        string                `json:"issueDate"`
	DueDate          string                `json:"dueDate"`
	PaidDate         *string               `json:"paidDate"`
	Description      string                `json:"description,omitempty"`
	Items            []invoiceItemResponse `json:"items"`
	CreatedAt        string                `json:"createdAt"`
	UpdatedAt        string                `json:"updatedAt"`
}

type invoiceItemResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	TotalPrice  string `json:"totalPrice"`
}

func toInvoiceResponse(inv billing.Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		BillingAccountID: inv.BillingAccountID,
		AccountName:      inv.AccountName,
		StoreID:          inv.StoreID,
		Amount:           money(inv.Amount),
		TaxAmount:        money(inv.TaxAmount),
		TotalAmount:      money(inv.TotalAmount),
		Status:           string(inv.Status),
		IssueDate:        inv.IssueDate.Format(dateLayout),
		DueDate:          inv.DueDate.Format(dateLayout),
		Description:      inv.Description,
		Items:            make([]invoiceItemResponse, 0, len(inv.Items)),
		CreatedAt:        timestamp(inv.CreatedAt),
		UpdatedAt:        timestamp(inv.UpdatedAt),
	}
	if inv.PaidDate != nil {
		paid := inv.PaidDate.Format(dateLayout)
		out.PaidDate = &paid
	}
	for _, item := range inv.Items {
		out.Items = append(out.Items, invoiceItemResponse{
			ID:          item.ID,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   money(item.UnitPrice),
			TotalPrice:  item.TotalPrice.String(),
		})
	}
	return out
}

type paymentResponse struct {
	ID               int64  `json:"id"`
	InvoiceID        int64  `json:"invoiceId"`
	InvoiceNumber    string `json:"invoiceNumber,omitempty"`
	Amount           string `json:"amount"`
	PaymentMethod    string `json:"paymentMethod"`
	PaymentReference string `json:"paymentReference,omitempty"`
	PaymentDate      string `json:"paymentDate"`
	Status           string `json:"status"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

func toPaymentResponse(p billing.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		InvoiceID:        p.InvoiceID,
		InvoiceNumber:    p.InvoiceNumber,
		Amount:           money(p.Amount),
		PaymentMethod:    string(p.Method),
		PaymentReference: p.Reference,
		PaymentDate:      p.PaymentDate.Format(dateLayout),
		Status:           string(p.Status),
		Notes:            p.Notes,
		CreatedAt:        timestamp(p.CreatedAt),
		UpdatedAt:        timestamp(p.UpdatedAt),
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseDate reads a calendar date. An empty value yields the zero time so the
// required check reports it.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, shared.NewValidationError(map[string]string{
			field: fmt.Sprintf("must be a date formatted as %s", dateLayout),
		})
	}
	return t, nil
}
