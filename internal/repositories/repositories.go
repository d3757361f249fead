package repositories

import (
	"context"

	"example.com/procurement/services/match/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseOrderRepository provides access to purchase order documents
type PurchaseOrderRepository interface {
	Upsert(ctx context.Context, po *models.PurchaseOrder) error
	List(ctx context.Context) ([]models.PurchaseOrder, error)
	ExistsBySourcePath(ctx context.Context, path string) (bool, error)
}

// InvoiceRepository provides access to invoice documents
type InvoiceRepository interface {
	Upsert(ctx context.Context, invoice *models.Invoice) error
	List(ctx context.Context) ([]models.Invoice, error)
	ExistsBySourcePath(ctx context.Context, path string) (bool, error)
}

// GoodsReceiptRepository provides access to goods receipt documents
type GoodsReceiptRepository interface {
	Upsert(ctx context.Context, receipt *models.GoodsReceipt) error
	List(ctx context.Context) ([]models.GoodsReceipt, error)
	ExistsBySourcePath(ctx context.Context, path string) (bool, error)
}

// DecisionRepository provides access to reconciliation decisions
type DecisionRepository interface {
	Upsert(ctx context.Context, decision *models.ReconciliationDecision) error
	GetByPONumber(ctx context.Context, poNumber string) (*models.ReconciliationDecision, error)
	List(ctx context.Context) ([]models.ReconciliationDecision, error)
}

type purchaseOrderRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert creates the purchase order, replacing any earlier ingestion of the
// same po_number together with its line items
func (r *purchaseOrderRepository) Upsert(ctx context.Context, po *models.PurchaseOrder) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PurchaseOrder
		err := tx.Where("po_number = ?", po.PONumber).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(po).Error
			}
			return err
		}

		if err := tx.Where("purchase_order_id = ?", existing.ID).Delete(&models.POLineItem{}).Error; err != nil {
			return err
		}

		po.ID = existing.ID
		po.CreatedAt = existing.CreatedAt
		for i := range po.Items {
			po.Items[i].PurchaseOrderID = existing.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(po).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to upsert purchase order")
	}
	return nil
}

// List returns all purchase orders with their line items, ordered by po_number
func (r *purchaseOrderRepository) List(ctx context.Context) ([]models.PurchaseOrder, error) {
	var pos []models.PurchaseOrder
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Order("po_number").
		Find(&pos).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list purchase orders")
	}
	return pos, nil
}

// ExistsBySourcePath reports whether a purchase order was ingested from the given PDF
func (r *purchaseOrderRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("source_pdf_path = ?", path).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check purchase order source path")
	}
	return count > 0, nil
}

type invoiceRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB, readOnlyDB *gorm.DB) InvoiceRepository {
	return &invoiceRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert creates the invoice, replacing any earlier ingestion of the same
// invoice_number together with its line items
func (r *invoiceRepository) Upsert(ctx context.Context, invoice *models.Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Invoice
		err := tx.Where("invoice_number = ?", invoice.InvoiceNumber).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(invoice).Error
			}
			return err
		}

		if err := tx.Where("invoice_id = ?", existing.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
			return err
		}

		invoice.ID = existing.ID
		invoice.CreatedAt = existing.CreatedAt
		for i := range invoice.Items {
			invoice.Items[i].InvoiceID = existing.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(invoice).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to upsert invoice")
	}
	return nil
}

// List returns all invoices with their line items, ordered by invoice_number
func (r *invoiceRepository) List(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Order("invoice_number").
		Find(&invoices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list invoices")
	}
	return invoices, nil
}

// ExistsBySourcePath reports whether an invoice was ingested from the given PDF
func (r *invoiceRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("source_pdf_path = ?", path).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check invoice source path")
	}
	return count > 0, nil
}

type goodsReceiptRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewGoodsReceiptRepository creates a new goods receipt repository
func NewGoodsReceiptRepository(db *gorm.DB, readOnlyDB *gorm.DB) GoodsReceiptRepository {
	return &goodsReceiptRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert creates the goods receipt, replacing any earlier ingestion of the
// same grn_number together with its line items
func (r *goodsReceiptRepository) Upsert(ctx context.Context, receipt *models.GoodsReceipt) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.GoodsReceipt
		err := tx.Where("grn_number = ?", receipt.GRNNumber).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(receipt).Error
			}
			return err
		}

		if err := tx.Where("goods_receipt_id = ?", existing.ID).Delete(&models.GRNLineItem{}).Error; err != nil {
			return err
		}

		receipt.ID = existing.ID
		receipt.CreatedAt = existing.CreatedAt
		for i := range receipt.Items {
			receipt.Items[i].GoodsReceiptID = existing.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(receipt).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to upsert goods receipt")
	}
	return nil
}

// List returns all goods receipts with their line items, ordered by grn_number
func (r *goodsReceiptRepository) List(ctx context.Context) ([]models.GoodsReceipt, error) {
	var receipts []models.GoodsReceipt
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Items").
		Order("grn_number").
		Find(&receipts).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list goods receipts")
	}
	return receipts, nil
}

// ExistsBySourcePath reports whether a goods receipt was ingested from the given PDF
func (r *goodsReceiptRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.GoodsReceipt{}).
		Where("source_pdf_path = ?", path).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check goods receipt source path")
	}
	return count > 0, nil
}

type decisionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *gorm.DB, readOnlyDB *gorm.DB) DecisionRepository {
	return &decisionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Upsert records a decision for a PO. A later decision for the same
// po_number fully replaces the earlier one in a single atomic statement.
func (r *decisionRepository) Upsert(ctx context.Context, decision *models.ReconciliationDecision) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "po_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"decision", "comment", "decided_by", "decided_at", "updated_at"}),
		}).
		Create(decision).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert decision")
	}
	return nil
}

// GetByPONumber returns the latest decision for a PO, or ErrNotFound
func (r *decisionRepository) GetByPONumber(ctx context.Context, poNumber string) (*models.ReconciliationDecision, error) {
	var decision models.ReconciliationDecision
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).Where("po_number = ?", poNumber).First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get decision by PO number")
	}
	return &decision, nil
}

// List returns all recorded decisions
func (r *decisionRepository) List(ctx context.Context) ([]models.ReconciliationDecision, error) {
	var decisions []models.ReconciliationDecision
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).Order("po_number").Find(&decisions).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list decisions")
	}
	return decisions, nil
}
