package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Party identifies one side of a procurement document. Embedded into the
// document models with a column prefix.
type Party struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Address string `json:"address"`
}

// PurchaseOrder represents an ingested purchase order document
type PurchaseOrder struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
	PONumber      string          `gorm:"column:po_number;not null;uniqueIndex" json:"po_number"`
	IssueDate     string          `json:"date"`
	Currency      string          `gorm:"not null" json:"currency"`
	Vendor        Party           `gorm:"embedded;embeddedPrefix:vendor_" json:"vendor"`
	Buyer         Party           `gorm:"embedded;embeddedPrefix:buyer_" json:"buyer"`
	Items         []POLineItem    `gorm:"foreignKey:PurchaseOrderID" json:"items"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Tax           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax"`
	GrandTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	SourcePDFPath *string         `gorm:"uniqueIndex" json:"source_pdf_path"`
}

// POLineItem is a single ordered line on a purchase order
type POLineItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	SKU             string          `gorm:"column:sku" json:"sku"`
	Description     string          `json:"description"`
	Quantity        float64         `gorm:"not null;default:0" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
}

// Invoice represents an ingested invoice document. ReferencePO is a free
// string: it may be empty or point at a PO that was never ingested.
type Invoice struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
	InvoiceNumber string           `gorm:"not null;uniqueIndex" json:"invoice_number"`
	ReferencePO   string           `gorm:"column:reference_po;index" json:"reference_po"`
	InvoiceDate   string           `json:"date"`
	Currency      string           `gorm:"not null" json:"currency"`
	Vendor        Party            `gorm:"embedded;embeddedPrefix:vendor_" json:"vendor"`
	Buyer         Party            `gorm:"embedded;embeddedPrefix:buyer_" json:"buyer"`
	Items         []InvoiceLineItem `gorm:"foreignKey:InvoiceID" json:"items"`
	Subtotal      decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Tax           decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"tax"`
	TaxRate       decimal.Decimal  `gorm:"type:decimal(8,4);default:0" json:"tax_rate"`
	GrandTotal    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	BuyerCountry  *string          `json:"buyer_country"`
	BuyerCurrency *string          `json:"buyer_currency"`
	BuyerTotal    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"buyer_total"`
	Note          *string          `json:"note"`
	SourcePDFPath *string          `gorm:"uniqueIndex" json:"source_pdf_path"`
}

// InvoiceLineItem is a single billed line on an invoice
type InvoiceLineItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	SKU         string          `gorm:"column:sku" json:"sku"`
	Description string          `json:"description"`
	Quantity    float64         `gorm:"not null;default:0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
}

// GoodsReceipt represents an ingested goods receipt note
type GoodsReceipt struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	GRNNumber     string         `gorm:"column:grn_number;not null;uniqueIndex" json:"grn_number"`
	ReferencePO   string         `gorm:"column:reference_po;index" json:"reference_po"`
	ReceiptDate   string         `json:"date"`
	Vendor        Party          `gorm:"embedded;embeddedPrefix:vendor_" json:"vendor"`
	Receiver      Party          `gorm:"embedded;embeddedPrefix:receiver_" json:"receiver"`
	Items         []GRNLineItem  `gorm:"foreignKey:GoodsReceiptID" json:"items"`
	SourcePDFPath *string        `gorm:"uniqueIndex" json:"source_pdf_path"`
}

// GRNLineItem is a single received line on a goods receipt note
type GRNLineItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GoodsReceiptID   uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	SKU              string    `gorm:"column:sku" json:"sku"`
	Description      string    `json:"description"`
	QuantityReceived float64   `gorm:"not null;default:0" json:"quantity"`
	InspectionStatus string    `json:"status"`
}

// ReconciliationDecision is a human approve/reject judgment for one PO.
// One row per po_number; a later decision replaces the earlier one.
type ReconciliationDecision struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	PONumber  string    `gorm:"column:po_number;not null;uniqueIndex" json:"po_number"`
	Decision  string    `gorm:"not null" json:"decision"`
	Comment   string    `json:"comment"`
	DecidedBy string    `gorm:"column:decided_by" json:"user"`
	DecidedAt time.Time `json:"timestamp"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&PurchaseOrder{},
		&POLineItem{},
		&Invoice{},
		&InvoiceLineItem{},
		&GoodsReceipt{},
		&GRNLineItem{},
		&ReconciliationDecision{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
