// Package extraction turns scanned procurement PDFs into structured document
// records through an external AI model. The model classifies the document and
// extracts its fields in one call; everything downstream treats the output as
// potentially incomplete.
package extraction

import (
	"context"
	"encoding/base64"
	"strings"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/models"
	"example.com/procurement/services/match/internal/tracing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DocumentType classifies an extracted document
type DocumentType string

// Recognized document types. Unknown covers anything the model could not
// classify as one of the three procurement documents.
const (
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
	DocumentTypeInvoice       DocumentType = "invoice"
	DocumentTypeGoodsReceipt  DocumentType = "goods_receipt"
	DocumentTypeUnknown       DocumentType = "unknown"
)

// DocumentExtraction is the classified result for one PDF. Exactly one of
// the payload fields is populated, matching DocumentType.
type DocumentExtraction struct {
	DocumentType  DocumentType
	PurchaseOrder *models.PurchaseOrder
	Invoice       *models.Invoice
	GoodsReceipt  *models.GoodsReceipt
}

// Client extracts structured documents from PDF bytes
type Client interface {
	ExtractDocument(ctx context.Context, pdf []byte, sourcePath string) (*DocumentExtraction, error)
}

const systemPrompt = `You are an expert procurement document parser (Invoice, PO, GRN).
1. Identify the document type ('請求書'=Invoice, '発注書'=PO, '受領書'=GRN).
2. Extract Japanese text exactly.
3. Handle currency: use the main table currency for line items. Note conversions in 'note'.
4. Use null for missing fields.
5. If the invoice currency differs from the buyer's currency, report the buyer-currency total as 'buyer_total'.
Respond with a single JSON object, no prose, matching this schema:
{"document_type": "invoice" | "purchase_order" | "goods_receipt_note" | "unknown",
 "purchase_order": {"po_number", "date", "currency", "vendor": {"name", "country", "address"}, "buyer": {...},
   "items": [{"sku", "description", "quantity", "unit_price", "total", "status"}], "subtotal", "tax", "grand_total"} | null,
 "invoice": {"invoice_number", "date", "reference_po", "currency", "vendor", "buyer", "items", "subtotal", "tax",
   "tax_rate", "grand_total", "buyer_country", "buyer_currency", "buyer_total", "note"} | null,
 "goods_receipt": {"grn_number", "date", "reference_po", "vendor", "buyer", "items"} | null}`

// anthropicClient implements Client using the Anthropic SDK. Configuration is
// passed in explicitly; there is no ambient API state.
type anthropicClient struct {
	client  sdk.Client
	cfg     config.AnthropicConfig
	tracer  tracing.Tracer
	enabled bool
}

// NewClient creates a document extraction client. Without an API key it
// returns a disabled client whose calls fail cleanly, so ingest runs can
// still be exercised against pre-extracted stores.
func NewClient(cfg config.AnthropicConfig, tracer tracing.Tracer) Client {
	if cfg.APIKey == "" {
		log.Warn().Msg("Anthropic API key not provided, document extraction will be disabled")
		return &anthropicClient{cfg: cfg, tracer: tracer, enabled: false}
	}

	return &anthropicClient{
		client:  sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:     cfg,
		tracer:  tracer,
		enabled: true,
	}
}

// ExtractDocument sends the PDF to the model and maps the structured response
// onto document models
func (c *anthropicClient) ExtractDocument(ctx context.Context, pdf []byte, sourcePath string) (*DocumentExtraction, error) {
	if !c.enabled {
		return nil, errors.New("extraction client is disabled: no API key configured")
	}

	txn := c.tracer.StartTransaction("extract-document")
	defer c.tracer.EndTransaction(txn)
	c.tracer.AddAttribute(txn, "source_pdf_path", sourcePath)

	seg := c.tracer.StartExternalSegment(txn, &newrelic.ExternalSegment{
		StartTime: txn.StartSegmentNow(),
		URL:       "https://api.anthropic.com/v1/messages",
		Procedure: "POST",
	})

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(
				sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
					Data: base64.StdEncoding.EncodeToString(pdf),
				}),
				sdk.NewTextBlock("Analyze this document. Extract all fields strictly according to the schema."),
			),
		},
	})
	seg.End()
	if err != nil {
		c.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to call extraction model")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	extraction, err := parseExtraction(text.String())
	if err != nil {
		c.tracer.RecordError(txn, err)
		return nil, errors.Wrapf(err, "failed to parse extraction response for %s", sourcePath)
	}

	return extraction, nil
}
