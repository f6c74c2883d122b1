package billing

import (
	"fmt"
	"strings"
	"time"
)

// DefaultInvoicePrefix starts every invoice number unless configured otherwise.
const DefaultInvoicePrefix = "INV"

// InvoicePeriod returns the counter partition for t, e.g. "202610".
func InvoicePeriod(t time.Time) string {
	return t.UTC().Format("200601")
}

// FormatInvoiceNumber renders prefix, period and sequence as PREFIX-YYYYMM-NNNNNN.
// Sequences beyond six digits widen rather than wrap.
func FormatInvoiceNumber(prefix, period string, seq int64) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, period, seq)
}
