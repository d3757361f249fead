package matching

import (
	"fmt"

	"example.com/procurement/services/match/internal/models"

	"github.com/shopspring/decimal"
)

// Comparison is the outcome of the tolerant amount check between a PO and
// its linked invoices
type Comparison struct {
	POTotal         decimal.Decimal
	InvoiceTotal    decimal.Decimal
	Delta           decimal.Decimal
	WithinTolerance bool
	CurrencyIssues  []string
}

// CompareAmounts sums the grand totals of all linked invoices and compares
// the sum against the PO grand total with an absolute tolerance. Split
// invoicing reconciles when the invoice totals add up. A currency mismatch
// between the PO and any invoice is reported as a discrepancy string,
// independent of the numeric result; no conversion is attempted.
func CompareAmounts(po *models.PurchaseOrder, invoices []models.Invoice, tolerance decimal.Decimal) Comparison {
	cmp := Comparison{POTotal: po.GrandTotal}

	for _, inv := range invoices {
		cmp.InvoiceTotal = cmp.InvoiceTotal.Add(inv.GrandTotal)
		if po.Currency != "" && inv.Currency != "" && inv.Currency != po.Currency {
			cmp.CurrencyIssues = append(cmp.CurrencyIssues, fmt.Sprintf(
				"Currency mismatch: PO is %s, invoice %s is %s", po.Currency, inv.InvoiceNumber, inv.Currency))
		}
	}

	cmp.Delta = cmp.POTotal.Sub(cmp.InvoiceTotal).Abs()
	cmp.WithinTolerance = cmp.Delta.LessThanOrEqual(tolerance)
	return cmp
}
