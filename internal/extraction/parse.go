package extraction

import (
	"encoding/json"
	"regexp"
	"strings"

	"example.com/procurement/services/match/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var poReferencePattern = regexp.MustCompile(`PO-\d+`)

// NormalizePOReference canonicalizes a PO reference scraped off a document:
// the first PO-<digits> token wins, otherwise the trimmed text is kept as-is.
func NormalizePOReference(text string) string {
	if match := poReferencePattern.FindString(text); match != "" {
		return match
	}
	return strings.TrimSpace(text)
}

// Wire types mirroring the JSON schema the model is asked to produce. Every
// numeric field is nullable since the model reports missing fields as null.
type partyPayload struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Address string `json:"address"`
}

type lineItemPayload struct {
	SKU         string   `json:"sku"`
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Total       *float64 `json:"total"`
	Status      string   `json:"status"`
}

type purchaseOrderPayload struct {
	PONumber   string            `json:"po_number"`
	Date       string            `json:"date"`
	Currency   string            `json:"currency"`
	Vendor     *partyPayload     `json:"vendor"`
	Buyer      *partyPayload     `json:"buyer"`
	Items      []lineItemPayload `json:"items"`
	Subtotal   *float64          `json:"subtotal"`
	Tax        *float64          `json:"tax"`
	GrandTotal *float64          `json:"grand_total"`
}

type invoicePayload struct {
	InvoiceNumber string            `json:"invoice_number"`
	Date          string            `json:"date"`
	ReferencePO   string            `json:"reference_po"`
	Currency      string            `json:"currency"`
	Vendor        *partyPayload     `json:"vendor"`
	Buyer         *partyPayload     `json:"buyer"`
	Items         []lineItemPayload `json:"items"`
	Subtotal      *float64          `json:"subtotal"`
	Tax           *float64          `json:"tax"`
	TaxRate       *float64          `json:"tax_rate"`
	GrandTotal    *float64          `json:"grand_total"`
	BuyerCountry  *string           `json:"buyer_country"`
	BuyerCurrency *string           `json:"buyer_currency"`
	BuyerTotal    *float64          `json:"buyer_total"`
	Note          *string           `json:"note"`
}

type goodsReceiptPayload struct {
	GRNNumber   string            `json:"grn_number"`
	Date        string            `json:"date"`
	ReferencePO string            `json:"reference_po"`
	Vendor      *partyPayload     `json:"vendor"`
	Buyer       *partyPayload     `json:"buyer"`
	Items       []lineItemPayload `json:"items"`
}

type extractionPayload struct {
	DocumentType  string                `json:"document_type"`
	PurchaseOrder *purchaseOrderPayload `json:"purchase_order"`
	Invoice       *invoicePayload       `json:"invoice"`
	GoodsReceipt  *goodsReceiptPayload  `json:"goods_receipt"`
}

// parseExtraction decodes the model's JSON response into document models
func parseExtraction(text string) (*DocumentExtraction, error) {
	cleaned := stripCodeFences(text)

	var payload extractionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal extraction payload")
	}

	return mapPayload(payload)
}

// mapPayload converts a decoded payload into models, validating that the
// classified type carries its document
func mapPayload(payload extractionPayload) (*DocumentExtraction, error) {
	switch payload.DocumentType {
	case "purchase_order", "発注書":
		if payload.PurchaseOrder == nil {
			return nil, errors.New("document classified as purchase order but no payload present")
		}
		return &DocumentExtraction{
			DocumentType:  DocumentTypePurchaseOrder,
			PurchaseOrder: mapPurchaseOrder(payload.PurchaseOrder),
		}, nil
	case "invoice", "請求書":
		if payload.Invoice == nil {
			return nil, errors.New("document classified as invoice but no payload present")
		}
		return &DocumentExtraction{
			DocumentType: DocumentTypeInvoice,
			Invoice:      mapInvoice(payload.Invoice),
		}, nil
	case "goods_receipt_note", "goods_receipt", "受領書":
		if payload.GoodsReceipt == nil {
			return nil, errors.New("document classified as goods receipt but no payload present")
		}
		return &DocumentExtraction{
			DocumentType: DocumentTypeGoodsReceipt,
			GoodsReceipt: mapGoodsReceipt(payload.GoodsReceipt),
		}, nil
	default:
		return &DocumentExtraction{DocumentType: DocumentTypeUnknown}, nil
	}
}

func mapPurchaseOrder(p *purchaseOrderPayload) *models.PurchaseOrder {
	po := &models.PurchaseOrder{
		ID:         uuid.New(),
		PONumber:   strings.TrimSpace(p.PONumber),
		IssueDate:  p.Date,
		Currency:   p.Currency,
		Vendor:     mapParty(p.Vendor),
		Buyer:      mapParty(p.Buyer),
		Subtotal:   toDecimal(p.Subtotal),
		Tax:        toDecimal(p.Tax),
		GrandTotal: toDecimal(p.GrandTotal),
	}
	for _, item := range p.Items {
		po.Items = append(po.Items, models.POLineItem{
			ID:          uuid.New(),
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    toFloat(item.Quantity),
			UnitPrice:   toDecimal(item.UnitPrice),
			LineTotal:   toDecimal(item.Total),
		})
	}
	return po
}

func mapInvoice(p *invoicePayload) *models.Invoice {
	inv := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: strings.TrimSpace(p.InvoiceNumber),
		ReferencePO:   NormalizePOReference(p.ReferencePO),
		InvoiceDate:   p.Date,
		Currency:      p.Currency,
		Vendor:        mapParty(p.Vendor),
		Buyer:         mapParty(p.Buyer),
		Subtotal:      toDecimal(p.Subtotal),
		Tax:           toDecimal(p.Tax),
		TaxRate:       toDecimal(p.TaxRate),
		GrandTotal:    toDecimal(p.GrandTotal),
		BuyerCountry:  p.BuyerCountry,
		BuyerCurrency: p.BuyerCurrency,
		Note:          p.Note,
	}
	if p.BuyerTotal != nil {
		buyerTotal := decimal.NewFromFloat(*p.BuyerTotal)
		inv.BuyerTotal = &buyerTotal
	}
	for _, item := range p.Items {
		inv.Items = append(inv.Items, models.InvoiceLineItem{
			ID:          uuid.New(),
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    toFloat(item.Quantity),
			UnitPrice:   toDecimal(item.UnitPrice),
			LineTotal:   toDecimal(item.Total),
		})
	}
	return inv
}

func mapGoodsReceipt(p *goodsReceiptPayload) *models.GoodsReceipt {
	grn := &models.GoodsReceipt{
		ID:          uuid.New(),
		GRNNumber:   strings.TrimSpace(p.GRNNumber),
		ReferencePO: NormalizePOReference(p.ReferencePO),
		ReceiptDate: p.Date,
		Vendor:      mapParty(p.Vendor),
		Receiver:    mapParty(p.Buyer),
	}
	for _, item := range p.Items {
		grn.Items = append(grn.Items, models.GRNLineItem{
			ID:               uuid.New(),
			SKU:              item.SKU,
			Description:      item.Description,
			QuantityReceived: toFloat(item.Quantity),
			InspectionStatus: item.Status,
		})
	}
	return grn
}

func mapParty(p *partyPayload) models.Party {
	if p == nil {
		return models.Party{}
	}
	return models.Party{Name: p.Name, Country: p.Country, Address: p.Address}
}

func toDecimal(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func toFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// stripCodeFences removes a markdown fence the model sometimes wraps its JSON in
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
