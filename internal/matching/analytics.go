package matching

// Summary holds the aggregate view over one reconciliation run. Document
// totals are raw collection sizes, independent of how matching went.
type Summary struct {
	TotalPurchaseOrders int `json:"total_purchase_orders"`
	TotalInvoices       int `json:"total_invoices"`
	TotalGoodsReceipts  int `json:"total_goods_receipts"`
	Matched             int `json:"matched"`
	Issues              int `json:"issues"`
	Approved            int `json:"approved"`
	Rejected            int `json:"rejected"`
	Pending             int `json:"pending"`
}

// Summarize folds a reconciliation report into summary counts. Pending
// covers every result without a recorded decision, whatever its status.
// Pure fold, recomputed per call.
func Summarize(report Report, totalPOs, totalInvoices, totalReceipts int) Summary {
	summary := Summary{
		TotalPurchaseOrders: totalPOs,
		TotalInvoices:       totalInvoices,
		TotalGoodsReceipts:  totalReceipts,
	}

	for _, result := range report.Results {
		if result.Status == StatusMatched {
			summary.Matched++
		} else {
			summary.Issues++
		}

		switch {
		case result.Decision == nil:
			summary.Pending++
		case result.Decision.Decision == DecisionApproved:
			summary.Approved++
		case result.Decision.Decision == DecisionRejected:
			summary.Rejected++
		default:
			summary.Pending++
		}
	}

	return summary
}
