package billing

import (
	"fmt"

	"github.com/odyssey-erp/billing/internal/shared"
)

var (
	ErrStoreNotFound   = fmt.Errorf("billing: store %w", shared.ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("billing: account %w", shared.ErrNotFound)
	ErrInvoiceNotFound = fmt.Errorf("billing: invoice %w", shared.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("billing: payment %w", shared.ErrNotFound)

	// ErrOverpayment rejects a payment larger than the invoice's remaining balance.
	ErrOverpayment = fmt.Errorf("billing: %w: payment amount exceeds remaining balance", shared.ErrInvalidArgument)
	// ErrBalanceOutOfRange rejects an adjustment that would overflow the balance column.
	ErrBalanceOutOfRange = fmt.Errorf("billing: %w: balance out of range", shared.ErrInvalidArgument)

	ErrInvoiceNotDraft       = fmt.Errorf("billing: %w: only draft invoices can be deleted", shared.ErrInvalidState)
	ErrInvoiceNotSendable    = fmt.Errorf("billing: %w: paid or cancelled invoices cannot be sent", shared.ErrInvalidState)
	ErrPaymentCompleted      = fmt.Errorf("billing: %w: completed payments cannot be deleted", shared.ErrInvalidState)
	ErrUnsupportedTransition = fmt.Errorf("billing: %w: unsupported payment status transition", shared.ErrInvalidState)

	ErrDuplicateInvoiceNumber = fmt.Errorf("billing: %w: invoice number already issued", shared.ErrConflict)
	ErrAccountHasInvoices     = fmt.Errorf("billing: %w: account still has invoices", shared.ErrConflict)
)
