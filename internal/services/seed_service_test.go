package services

import (
	"math/rand"
	"testing"

	"example.com/procurement/services/match/internal/matching"

	"github.com/stretchr/testify/require"
)

func TestGenerateWorldDeterministic(t *testing.T) {
	a1, b1, c1 := generateWorld(rand.New(rand.NewSource(42)), 20, 0.5)
	a2, b2, c2 := generateWorld(rand.New(rand.NewSource(42)), 20, 0.5)

	require.Len(t, a1, 20)
	require.Equal(t, len(b1), len(b2))
	require.Equal(t, len(c1), len(c2))

	for i := range a1 {
		require.Equal(t, a1[i].PONumber, a2[i].PONumber)
		require.True(t, a1[i].GrandTotal.Equal(a2[i].GrandTotal))
	}
	for i := range b1 {
		require.Equal(t, b1[i].InvoiceNumber, b2[i].InvoiceNumber)
		require.Equal(t, b1[i].ReferencePO, b2[i].ReferencePO)
	}
}

func TestGenerateWorldNoChaosMatches(t *testing.T) {
	pos, invoices, receipts := generateWorld(rand.New(rand.NewSource(7)), 15, 0)

	require.Len(t, invoices, 15)
	require.Len(t, receipts, 15)

	report := matching.Reconcile(pos, invoices, receipts, matching.DefaultOptions())
	for _, result := range report.Results {
		require.Equal(t, matching.StatusMatched, result.Status, "PO %s: %v", result.PONumber, result.Issues)
	}
}

func TestGenerateWorldChaosProducesDiscrepancies(t *testing.T) {
	pos, invoices, receipts := generateWorld(rand.New(rand.NewSource(3)), 40, 1.0)

	report := matching.Reconcile(pos, invoices, receipts, matching.DefaultOptions())

	counts := map[matching.Status]int{}
	for _, result := range report.Results {
		counts[result.Status]++
	}

	// Every transaction carries exactly one defect, so at full chaos the run
	// should surface unmatched statuses and no fully matched PO
	require.Zero(t, counts[matching.StatusMatched])
	require.Positive(t, counts[matching.StatusGhostPO]+counts[matching.StatusMissingInvoice]+
		counts[matching.StatusMissingGoodsReceipt]+counts[matching.StatusAmountMismatch])
}

func TestGenerateGoodsReceiptNumbers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pos, _, receipts := generateWorld(rng, 10, 0)

	byPO := map[string]string{}
	for _, grn := range receipts {
		byPO[grn.ReferencePO] = grn.GRNNumber
	}
	for _, po := range pos {
		require.Equal(t, "GR-"+po.PONumber[3:], byPO[po.PONumber])
	}
}
