package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies how a billing account settles.
type AccountType string

const (
	AccountTypePrepaid  AccountType = "PREPAID"
	AccountTypePostpaid AccountType = "POSTPAID"
	AccountTypeCredit   AccountType = "CREDIT"
)

// Valid reports whether the type is known.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypePrepaid, AccountTypePostpaid, AccountTypeCredit:
		return true
	}
	return false
}

// AccountStatus is the administrative state of a billing account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusPending   AccountStatus = "PENDING"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Valid reports whether the status is known.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusPending, AccountStatusSuspended:
		return true
	}
	return false
}

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Valid reports whether the status is known.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// CanDelete reports whether an invoice in this status may be deleted.
func (s InvoiceStatus) CanDelete() bool {
	return s == InvoiceStatusDraft
}

// CanSend reports whether an invoice in this status may be sent.
func (s InvoiceStatus) CanSend() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusSent
}

// PaymentStatus enumerates payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Valid reports whether the status is known.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a supported successor of s.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

// PaymentMethod tags how a payment was remitted.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// Account is a store's billing counterpart.
type Account struct {
	ID          int64
	StoreID     int64
	StoreName   string
	AccountName string
	AccountType AccountType
	Balance     decimal.Decimal
	CreditLimit decimal.Decimal
	Currency    string
	Status      AccountStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OverCreditLimit reports whether a credit account's balance exceeds its limit.
func (a Account) OverCreditLimit() bool {
	return a.AccountType == AccountTypeCredit && a.Balance.GreaterThan(a.CreditLimit)
}

// Invoice is a billable demand against one billing account.
type Invoice struct {
	ID               int64
	InvoiceNumber    string
	BillingAccountID int64
	AccountName      string
	StoreID          int64
	Amount           decimal.Decimal
	TaxAmount        decimal.Decimal
	TotalAmount      decimal.Decimal
	Status           InvoiceStatus
	IssueDate        time.Time
	DueDate          time.Time
	PaidDate         *time.Time
	Description      string
	Items            []InvoiceItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InvoiceItem is a line entry owned by an invoice.
type InvoiceItem struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// NewInvoiceItem builds a line with its total computed. Items are immutable
// once the invoice is stored.
func NewInvoiceItem(description string, quantity, unitPrice decimal.Decimal) InvoiceItem {
	return InvoiceItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  quantity.Mul(unitPrice),
	}
}

// Payment is a remittance recorded against one invoice.
type Payment struct {
	ID            int64
	InvoiceID     int64
	InvoiceNumber string
	Amount        decimal.Decimal
	Method        PaymentMethod
	Reference     string
	PaymentDate   time.Time
	Status        PaymentStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	StoreID       int64
	Status        AccountStatus
	Search        string
	Page          int
	Size          int
	SortBy        string
	SortDirection string
}

// InvoiceFilter narrows invoice listings. Zero values are ignored.
type InvoiceFilter struct {
	AccountID     int64
	StoreID       int64
	Status        InvoiceStatus
	Search        string
	DueFrom       *time.Time
	DueTo         *time.Time
	DueBefore     *time.Time
	IssuedFrom    *time.Time
	IssuedTo      *time.Time
	Page          int
	Size          int
	SortBy        string
	SortDirection string
}

// PaymentFilter narrows payment listings. Zero values are ignored.
type PaymentFilter struct {
	InvoiceID     int64
	AccountID     int64
	StoreID       int64
	Status        PaymentStatus
	Method        PaymentMethod
	Search        string
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	Size          int
	SortBy        string
	SortDirection string
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
