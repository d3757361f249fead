package extraction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePOReference(t *testing.T) {
	cases := map[string]string{
		"PO-00412":                 "PO-00412",
		"Ref: PO-00412 (urgent)":   "PO-00412",
		"  PO-12345  ":             "PO-12345",
		"PO-111 supersedes PO-222": "PO-111",
		"  order 77  ":             "order 77",
		"":                         "",
	}
	for input, expected := range cases {
		require.Equal(t, expected, NormalizePOReference(input), "input %q", input)
	}
}

func TestStripCodeFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
	require.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1}  "))
}

func TestParseExtractionInvoice(t *testing.T) {
	response := "```json\n" + `{
		"document_type": "invoice",
		"invoice": {
			"invoice_number": "INV-123456",
			"date": "2024-03-01",
			"reference_po": "Order PO-10042, urgent",
			"currency": "USD",
			"vendor": {"name": "TechFlow Systems", "country": "USA", "address": "123 Silicon Blvd"},
			"buyer": {"name": "Global Tech Corp", "country": "USA", "address": null},
			"items": [
				{"sku": "TF-SRV-4U", "description": "Server Rack Mount 4U", "quantity": 2, "unit_price": 300.5, "total": 601, "status": null}
			],
			"subtotal": 601,
			"tax": 48.08,
			"tax_rate": 0.08,
			"grand_total": 649.08,
			"buyer_country": null,
			"buyer_currency": null,
			"buyer_total": null,
			"note": null
		},
		"purchase_order": null,
		"goods_receipt": null
	}` + "\n```"

	extraction, err := parseExtraction(response)
	require.NoError(t, err)
	require.Equal(t, DocumentTypeInvoice, extraction.DocumentType)
	require.Nil(t, extraction.PurchaseOrder)
	require.Nil(t, extraction.GoodsReceipt)

	inv := extraction.Invoice
	require.NotNil(t, inv)
	require.Equal(t, "INV-123456", inv.InvoiceNumber)
	require.Equal(t, "PO-10042", inv.ReferencePO)
	require.Equal(t, "TechFlow Systems", inv.Vendor.Name)
	require.Equal(t, "649.08", inv.GrandTotal.StringFixed(2))
	require.Len(t, inv.Items, 1)
	require.Equal(t, 2.0, inv.Items[0].Quantity)
	require.Equal(t, "300.5", inv.Items[0].UnitPrice.String())
}

func TestParseExtractionJapaneseClassification(t *testing.T) {
	response := `{
		"document_type": "請求書",
		"invoice": {"invoice_number": "INV-9", "reference_po": "PO-10", "currency": "JPY", "items": [], "grand_total": 1000},
		"purchase_order": null,
		"goods_receipt": null
	}`

	extraction, err := parseExtraction(response)
	require.NoError(t, err)
	require.Equal(t, DocumentTypeInvoice, extraction.DocumentType)
	require.Equal(t, "JPY", extraction.Invoice.Currency)
}

func TestParseExtractionUnknown(t *testing.T) {
	extraction, err := parseExtraction(`{"document_type": "shipping_label"}`)
	require.NoError(t, err)
	require.Equal(t, DocumentTypeUnknown, extraction.DocumentType)
}

func TestParseExtractionMissingPayload(t *testing.T) {
	_, err := parseExtraction(`{"document_type": "purchase_order", "purchase_order": null}`)
	require.Error(t, err)
}

func TestParseExtractionMalformedJSON(t *testing.T) {
	_, err := parseExtraction("the document appears to be an invoice")
	require.Error(t, err)
}
