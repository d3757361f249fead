// Package matching implements the three-way match between purchase orders,
// invoices, and goods receipts. Everything in it is a pure function of its
// inputs: no I/O, no state, safe for concurrent callers.
package matching

import (
	"fmt"
	"sort"
	"strings"

	"example.com/procurement/services/match/internal/models"

	"github.com/shopspring/decimal"
)

// Status classifies the reconciliation outcome for one PO identifier
type Status string

// Statuses in priority order. Classification evaluates top-down and the
// first condition that holds wins: a missing PO record dominates everything,
// invoice absence dominates receipt absence.
const (
	StatusGhostPO             Status = "ghost_po"
	StatusMissingInvoice      Status = "missing_invoice"
	StatusMissingGoodsReceipt Status = "missing_goods_receipt"
	StatusAmountMismatch      Status = "amount_mismatch"
	StatusMatched             Status = "matched"
)

// Recognized decision values for the decision ledger
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// ValidDecision reports whether value is one of the recognized decision literals
func ValidDecision(value string) bool {
	return value == DecisionApproved || value == DecisionRejected
}

// Result is the reconciliation outcome for one PO identifier
type Result struct {
	PONumber      string                         `json:"po_number"`
	PurchaseOrder *models.PurchaseOrder          `json:"po"`
	Invoices      []models.Invoice               `json:"invoices"`
	GoodsReceipts []models.GoodsReceipt          `json:"goods_receipts"`
	Status        Status                         `json:"status"`
	Issues        []string                       `json:"issues"`
	Decision      *models.ReconciliationDecision `json:"decision"`
}

// Report is the full output of one reconciliation run. Skipped counts cover
// records missing their required identifier; unreferenced counts cover
// well-formed invoices/receipts that carry no PO reference at all.
type Report struct {
	Results              []Result `json:"results"`
	SkippedPOs           int      `json:"skipped_purchase_orders"`
	SkippedInvoices      int      `json:"skipped_invoices"`
	SkippedReceipts      int      `json:"skipped_goods_receipts"`
	UnreferencedInvoices int      `json:"unreferenced_invoices"`
	UnreferencedReceipts int      `json:"unreferenced_goods_receipts"`
}

// Options tunes the reconciliation run
type Options struct {
	// AmountTolerance is the absolute tolerance for the PO-vs-invoice total
	// comparison. Monetary rounding makes exact equality useless.
	AmountTolerance decimal.Decimal
}

// DefaultOptions returns the standard tolerance of one currency minor unit
func DefaultOptions() Options {
	return Options{AmountTolerance: decimal.NewFromFloat(0.01)}
}

// Reconcile joins the three document collections by reference key and
// produces one Result per distinct PO identifier appearing in any of them.
// Records without a required identifier are skipped and counted, never
// fatal. Output order is deterministic: PO-backed results sorted by
// po_number, then ghost identifiers in sorted order.
func Reconcile(pos []models.PurchaseOrder, invoices []models.Invoice, receipts []models.GoodsReceipt, opts Options) Report {
	var report Report

	invoicesByPO := make(map[string][]models.Invoice)
	for _, inv := range invoices {
		if strings.TrimSpace(inv.InvoiceNumber) == "" {
			report.SkippedInvoices++
			continue
		}
		if inv.ReferencePO == "" {
			report.UnreferencedInvoices++
			continue
		}
		invoicesByPO[inv.ReferencePO] = append(invoicesByPO[inv.ReferencePO], inv)
	}

	receiptsByPO := make(map[string][]models.GoodsReceipt)
	for _, grn := range receipts {
		if strings.TrimSpace(grn.GRNNumber) == "" {
			report.SkippedReceipts++
			continue
		}
		if grn.ReferencePO == "" {
			report.UnreferencedReceipts++
			continue
		}
		receiptsByPO[grn.ReferencePO] = append(receiptsByPO[grn.ReferencePO], grn)
	}

	seen := make(map[string]bool)
	results := make([]Result, 0, len(pos))
	for i := range pos {
		po := &pos[i]
		if strings.TrimSpace(po.PONumber) == "" {
			report.SkippedPOs++
			continue
		}
		// po_number is unique by invariant; a duplicate is a malformed record
		if seen[po.PONumber] {
			report.SkippedPOs++
			continue
		}
		seen[po.PONumber] = true
		results = append(results, classify(po, invoicesByPO[po.PONumber], receiptsByPO[po.PONumber], opts))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].PONumber < results[j].PONumber
	})

	// Identifiers referenced by invoices or receipts but absent from the PO
	// set surface as ghost results
	ghostIDs := make([]string, 0)
	for id := range invoicesByPO {
		if !seen[id] {
			seen[id] = true
			ghostIDs = append(ghostIDs, id)
		}
	}
	for id := range receiptsByPO {
		if !seen[id] {
			seen[id] = true
			ghostIDs = append(ghostIDs, id)
		}
	}
	sort.Strings(ghostIDs)

	for _, id := range ghostIDs {
		results = append(results, ghostResult(id, invoicesByPO[id], receiptsByPO[id]))
	}

	report.Results = results
	return report
}

// classify determines the status and issue list for a PO that exists in the
// PO set. Conditions are evaluated in priority order; a later condition
// never overrides an earlier status, but every detected discrepancy still
// lands in the issue list.
func classify(po *models.PurchaseOrder, invoices []models.Invoice, receipts []models.GoodsReceipt, opts Options) Result {
	result := Result{
		PONumber:      po.PONumber,
		PurchaseOrder: po,
		Invoices:      invoices,
		GoodsReceipts: receipts,
		Status:        StatusMatched,
		Issues:        []string{},
	}
	if result.Invoices == nil {
		result.Invoices = []models.Invoice{}
	}
	if result.GoodsReceipts == nil {
		result.GoodsReceipts = []models.GoodsReceipt{}
	}

	if len(invoices) == 0 {
		result.Status = StatusMissingInvoice
		result.Issues = append(result.Issues, "No invoice found for this PO")
	}
	if len(receipts) == 0 {
		if result.Status == StatusMatched {
			result.Status = StatusMissingGoodsReceipt
		}
		result.Issues = append(result.Issues, "No goods receipt found for this PO")
	}

	if len(invoices) > 0 {
		cmp := CompareAmounts(po, invoices, opts.AmountTolerance)
		if !cmp.WithinTolerance {
			if result.Status == StatusMatched {
				result.Status = StatusAmountMismatch
			}
			result.Issues = append(result.Issues, fmt.Sprintf(
				"Amount mismatch: PO total %s vs invoice total %s (delta %s)",
				cmp.POTotal.StringFixed(2), cmp.InvoiceTotal.StringFixed(2), cmp.Delta.StringFixed(2)))
		}
		for _, issue := range cmp.CurrencyIssues {
			if result.Status == StatusMatched {
				result.Status = StatusAmountMismatch
			}
			result.Issues = append(result.Issues, issue)
		}
	}

	return result
}

// ghostResult builds the result for an identifier no PO record carries
func ghostResult(poNumber string, invoices []models.Invoice, receipts []models.GoodsReceipt) Result {
	result := Result{
		PONumber:      poNumber,
		Invoices:      invoices,
		GoodsReceipts: receipts,
		Status:        StatusGhostPO,
		Issues:        []string{},
	}
	if result.Invoices == nil {
		result.Invoices = []models.Invoice{}
	}
	if result.GoodsReceipts == nil {
		result.GoodsReceipts = []models.GoodsReceipt{}
	}

	for _, inv := range result.Invoices {
		result.Issues = append(result.Issues, fmt.Sprintf("Invoice %s references non-existent PO: %s", inv.InvoiceNumber, poNumber))
	}
	for _, grn := range result.GoodsReceipts {
		result.Issues = append(result.Issues, fmt.Sprintf("GRN %s references non-existent PO: %s", grn.GRNNumber, poNumber))
	}

	return result
}

// AttachDecisions merges recorded decisions into the results by po_number
// lookup. The ledger accepts decisions for any identifier, so ghost and
// missing-* results pick up their decisions the same way matched ones do.
func AttachDecisions(results []Result, decisions []models.ReconciliationDecision) {
	if len(decisions) == 0 {
		return
	}
	byPO := make(map[string]*models.ReconciliationDecision, len(decisions))
	for i := range decisions {
		byPO[decisions[i].PONumber] = &decisions[i]
	}
	for i := range results {
		if d, ok := byPO[results[i].PONumber]; ok {
			results[i].Decision = d
		}
	}
}
