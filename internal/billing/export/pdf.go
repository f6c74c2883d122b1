// Package export renders billing documents for download.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/billing/internal/billing"
)

// Document is everything printed on an invoice PDF.
type Document struct {
	Invoice     billing.Invoice
	Account     billing.Account
	Payments    []billing.Payment
	GeneratedAt time.Time
}

// InvoicePDF renders doc as an A4 invoice.
func InvoicePDF(doc Document) ([]byte, error) {
	money := MoneyFormatter(doc.Account.Currency)
	inv := doc.Invoice

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(inv.InvoiceNumber, false)
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "Invoice "+inv.InvoiceNumber, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, "Generated: "+doc.GeneratedAt.Format("02-Jan-2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Billing Account", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, "Account: "+doc.Account.AccountName, "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Store: "+doc.Account.StoreName, "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Issued: "+inv.IssueDate.Format("02-Jan-2006"), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, "Due: "+inv.DueDate.Format("02-Jan-2006"), "RB", 1, "L", false, 0, "")
	status := string(inv.Status)
	if inv.PaidDate != nil {
		status += " on " + inv.PaidDate.Format("02-Jan-2006")
	}
	pdf.CellFormat(190, 7, "Status: "+status, "LRB", 1, "L", false, 0, "")
	if inv.Description != "" {
		pdf.MultiCell(190, 6, inv.Description, "", "L", false)
	}
	pdf.Ln(5)

	if len(inv.Items) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(85, 7, "Description", "1", 0, "C", true, 0, "")
		pdf.CellFormat(25, 7, "Qty", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Unit Price", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Total", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, item := range inv.Items {
			pdf.CellFormat(85, 6, truncate(item.Description, 45), "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, item.Quantity.String(), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, money(item.UnitPrice), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, money(item.TotalPrice), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(150, 7, "Amount", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, money(inv.Amount), "", 1, "R", false, 0, "")
	pdf.CellFormat(150, 7, "Tax", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, money(inv.TaxAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(150, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, money(inv.TotalAmount), "", 1, "R", false, 0, "")

	paid := decimal.Zero
	for _, p := range doc.Payments {
		if p.Status == billing.PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	due := inv.TotalAmount.Sub(paid)
	if due.IsPositive() {
		pdf.SetFillColor(255, 200, 200)
		pdf.CellFormat(190, 10, "Balance Due: "+money(due), "1", 1, "C", true, 0, "")
	} else {
		pdf.SetFillColor(200, 255, 200)
		pdf.CellFormat(190, 10, "FULLY PAID", "1", 1, "C", true, 0, "")
	}

	if len(doc.Payments) > 0 {
		pdf.Ln(5)
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(190, 8, "Payments", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(35, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Method", "1", 0, "C", true, 0, "")
		pdf.CellFormat(45, 7, "Reference", "1", 0, "C", true, 0, "")
		pdf.CellFormat(30, 7, "Status", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Amount", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, p := range doc.Payments {
			pdf.CellFormat(35, 6, p.PaymentDate.Format("02-Jan-2006"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, string(p.Method), "1", 0, "C", false, 0, "")
			pdf.CellFormat(45, 6, truncate(p.Reference, 22), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, string(p.Status), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, money(p.Amount), "1", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

// MoneyFormatter returns a function printing amounts as "<ISO code> <amount>"
// rounded to the currency's standard minor units. Unknown codes fall back to
// two decimals.
func MoneyFormatter(code string) func(decimal.Decimal) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return func(d decimal.Decimal) string {
			return code + " " + d.StringFixed(2)
		}
	}
	scale, _ := currency.Standard.Rounding(unit)
	return func(d decimal.Decimal) string {
		return unit.String() + " " + d.StringFixed(int32(scale))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
