package matching

import (
	"testing"
	"time"

	"example.com/procurement/services/match/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func po(number, total, currency string) models.PurchaseOrder {
	return models.PurchaseOrder{
		PONumber:   number,
		Currency:   currency,
		GrandTotal: decimal.RequireFromString(total),
	}
}

func invoice(number, refPO, total, currency string) models.Invoice {
	return models.Invoice{
		InvoiceNumber: number,
		ReferencePO:   refPO,
		Currency:      currency,
		GrandTotal:    decimal.RequireFromString(total),
	}
}

func receipt(number, refPO string) models.GoodsReceipt {
	return models.GoodsReceipt{
		GRNNumber:   number,
		ReferencePO: refPO,
	}
}

func TestReconcileMatched(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-1", "1000.00", "USD")},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Equal(t, "PO-1", result.PONumber)
	require.Equal(t, StatusMatched, result.Status)
	require.Empty(t, result.Issues)
	require.Len(t, result.Invoices, 1)
	require.Len(t, result.GoodsReceipts, 1)
	require.NotNil(t, result.PurchaseOrder)
}

func TestReconcileAmountMismatch(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-1", "950.00", "USD")},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Equal(t, StatusAmountMismatch, result.Status)
	require.Len(t, result.Issues, 1)
	require.Contains(t, result.Issues[0], "delta 50.00")
	require.Contains(t, result.Issues[0], "PO total 1000.00")
	require.Contains(t, result.Issues[0], "invoice total 950.00")
}

func TestReconcileMissingGoodsReceipt(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-1", "1000.00", "USD")},
		nil,
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Equal(t, StatusMissingGoodsReceipt, result.Status)
	require.Equal(t, []string{"No goods receipt found for this PO"}, result.Issues)
}

func TestReconcileMissingInvoiceDominatesMissingReceipt(t *testing.T) {
	// A PO with neither invoices nor receipts classifies as missing_invoice:
	// the invoice-absence check precedes the receipt-absence check
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		nil,
		nil,
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Equal(t, StatusMissingInvoice, result.Status)
	require.Equal(t, []string{
		"No invoice found for this PO",
		"No goods receipt found for this PO",
	}, result.Issues)
}

func TestReconcileGhostPO(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{
			invoice("INV-1", "PO-1", "1000.00", "USD"),
			invoice("INV-2", "PO-404", "500.00", "USD"),
		},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 2)

	require.Equal(t, "PO-1", report.Results[0].PONumber)
	require.Equal(t, StatusMatched, report.Results[0].Status)

	ghost := report.Results[1]
	require.Equal(t, "PO-404", ghost.PONumber)
	require.Equal(t, StatusGhostPO, ghost.Status)
	require.Nil(t, ghost.PurchaseOrder)
	require.Len(t, ghost.Invoices, 1)
	require.Equal(t, "INV-2", ghost.Invoices[0].InvoiceNumber)
	require.Empty(t, ghost.GoodsReceipts)
	require.Equal(t, []string{"Invoice INV-2 references non-existent PO: PO-404"}, ghost.Issues)
}

func TestReconcileGhostGathersBothSides(t *testing.T) {
	// A ghost identifier referenced by invoices and receipts surfaces once,
	// with every referencing document attached
	report := Reconcile(
		nil,
		[]models.Invoice{
			invoice("INV-1", "PO-9", "100.00", "USD"),
			invoice("INV-2", "PO-9", "200.00", "USD"),
		},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-9")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	ghost := report.Results[0]
	require.Equal(t, StatusGhostPO, ghost.Status)
	require.Len(t, ghost.Invoices, 2)
	require.Len(t, ghost.GoodsReceipts, 1)
	require.Equal(t, []string{
		"Invoice INV-1 references non-existent PO: PO-9",
		"Invoice INV-2 references non-existent PO: PO-9",
		"GRN GRN-1 references non-existent PO: PO-9",
	}, ghost.Issues)
}

func TestReconcileSplitInvoicing(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{
			invoice("INV-1", "PO-1", "400.00", "USD"),
			invoice("INV-2", "PO-1", "600.00", "USD"),
		},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	require.Equal(t, StatusMatched, report.Results[0].Status)
	require.Empty(t, report.Results[0].Issues)
}

func TestReconcileCurrencyMismatch(t *testing.T) {
	// Numeric equality does not rescue a currency mismatch
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-7", "PO-1", "1000.00", "EUR")},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Equal(t, StatusAmountMismatch, result.Status)
	require.Equal(t, []string{"Currency mismatch: PO is USD, invoice INV-7 is EUR"}, result.Issues)
}

func TestReconcileToleranceBoundary(t *testing.T) {
	// A delta of exactly one minor unit is still within the default tolerance
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-1", "999.99", "USD")},
		[]models.GoodsReceipt{receipt("GRN-1", "PO-1")},
		DefaultOptions(),
	)

	require.Equal(t, StatusMatched, report.Results[0].Status)
}

func TestReconcileAmountIssuesOnMissingReceipt(t *testing.T) {
	// The status reflects the highest-priority condition, but every detected
	// discrepancy still lands in the issue list
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-1", "700.00", "USD")},
		nil,
		DefaultOptions(),
	)

	result := report.Results[0]
	require.Equal(t, StatusMissingGoodsReceipt, result.Status)
	require.Len(t, result.Issues, 2)
	require.Equal(t, "No goods receipt found for this PO", result.Issues[0])
	require.Contains(t, result.Issues[1], "Amount mismatch")
}

func TestReconcileSkipsMalformedRecords(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{
			po("PO-1", "100.00", "USD"),
			po("", "50.00", "USD"),
			po("PO-1", "999.00", "USD"), // duplicate identifier
		},
		[]models.Invoice{
			invoice("INV-1", "PO-1", "100.00", "USD"),
			invoice("", "PO-1", "100.00", "USD"),
			invoice("INV-2", "", "25.00", "USD"),
		},
		[]models.GoodsReceipt{
			receipt("GRN-1", "PO-1"),
			receipt("", "PO-1"),
			receipt("GRN-2", ""),
		},
		DefaultOptions(),
	)

	require.Len(t, report.Results, 1)
	require.Equal(t, StatusMatched, report.Results[0].Status)
	require.Equal(t, 2, report.SkippedPOs)
	require.Equal(t, 1, report.SkippedInvoices)
	require.Equal(t, 1, report.SkippedReceipts)
	require.Equal(t, 1, report.UnreferencedInvoices)
	require.Equal(t, 1, report.UnreferencedReceipts)
}

func TestReconcileDeterministicOrder(t *testing.T) {
	pos := []models.PurchaseOrder{
		po("PO-3", "10.00", "USD"),
		po("PO-1", "10.00", "USD"),
		po("PO-2", "10.00", "USD"),
	}
	invoices := []models.Invoice{
		invoice("INV-9", "PO-900", "5.00", "USD"),
		invoice("INV-8", "PO-800", "5.00", "USD"),
	}

	report := Reconcile(pos, invoices, nil, DefaultOptions())

	var order []string
	for _, result := range report.Results {
		order = append(order, result.PONumber)
	}
	require.Equal(t, []string{"PO-1", "PO-2", "PO-3", "PO-800", "PO-900"}, order)
}

func TestReconcileIdempotent(t *testing.T) {
	pos := []models.PurchaseOrder{po("PO-1", "1000.00", "USD"), po("PO-2", "50.00", "EUR")}
	invoices := []models.Invoice{
		invoice("INV-1", "PO-1", "400.00", "USD"),
		invoice("INV-2", "PO-1", "600.00", "USD"),
		invoice("INV-3", "PO-77", "10.00", "USD"),
	}
	receipts := []models.GoodsReceipt{receipt("GRN-1", "PO-1")}

	first := Reconcile(pos, invoices, receipts, DefaultOptions())
	second := Reconcile(pos, invoices, receipts, DefaultOptions())

	require.Equal(t, first, second)
}

func TestAttachDecisions(t *testing.T) {
	report := Reconcile(
		[]models.PurchaseOrder{po("PO-1", "1000.00", "USD")},
		[]models.Invoice{invoice("INV-1", "PO-404", "10.00", "USD")},
		nil,
		DefaultOptions(),
	)
	require.Len(t, report.Results, 2)

	decisions := []models.ReconciliationDecision{
		{PONumber: "PO-404", Decision: DecisionApproved, DecidedBy: "JA", DecidedAt: time.Now()},
	}
	AttachDecisions(report.Results, decisions)

	// Decisions attach to ghost results too: approval is a human override
	require.Nil(t, report.Results[0].Decision)
	require.NotNil(t, report.Results[1].Decision)
	require.Equal(t, DecisionApproved, report.Results[1].Decision.Decision)
}

func TestValidDecision(t *testing.T) {
	require.True(t, ValidDecision(DecisionApproved))
	require.True(t, ValidDecision(DecisionRejected))
	require.False(t, ValidDecision("maybe"))
	require.False(t, ValidDecision(""))
	require.False(t, ValidDecision("Approved"))
}
