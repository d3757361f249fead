package services

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/procurement/services/match/internal/extraction"
	"example.com/procurement/services/match/internal/messaging"
	"example.com/procurement/services/match/internal/metrics"
	"example.com/procurement/services/match/internal/repositories"
	"example.com/procurement/services/match/internal/search"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Filed-away folders under the data lake root. Processed PDFs move here and
// the walker skips them on later runs.
const (
	folderPurchaseOrders = "purchase_orders"
	folderInvoices       = "invoices"
	folderGoodsReceipts  = "goods_receipts"
	folderUnclassified   = "unclassified"
)

// IngestSummary counts the outcomes of one data-lake scan
type IngestSummary struct {
	Processed int `json:"processed"`
	Moved     int `json:"moved"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// IngestService scans a data-lake directory for PDFs, extracts structured
// documents from them, persists the records, and files the PDFs away by type
type IngestService struct {
	poRepo      repositories.PurchaseOrderRepository
	invoiceRepo repositories.InvoiceRepository
	receiptRepo repositories.GoodsReceiptRepository
	extractor   extraction.Client
	bus         messaging.ServiceBusClient
	elastic     *search.ElasticClient
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewIngestService creates a new ingest service. The bus and search clients
// are optional; without them ingestion still persists documents.
func NewIngestService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	extractor extraction.Client,
	bus messaging.ServiceBusClient,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *IngestService {
	return &IngestService{
		poRepo:      repositories.NewPurchaseOrderRepository(db, readOnlyDB),
		invoiceRepo: repositories.NewInvoiceRepository(db, readOnlyDB),
		receiptRepo: repositories.NewGoodsReceiptRepository(db, readOnlyDB),
		extractor:   extractor,
		bus:         bus,
		elastic:     elasticClient,
		metrics:     metricsCollector,
		tracer:      tracer,
	}
}

// Run walks the data lake for PDFs and ingests each one. A failure on a
// single file never aborts the run; the file stays in place for a retry.
func (s *IngestService) Run(ctx context.Context, root string) (*IngestSummary, error) {
	pdfs, err := listPDFs(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan data lake")
	}

	log.Info().Str("root", root).Int("files", len(pdfs)).Msg("Starting ingest run")

	summary := &IngestSummary{}
	for _, path := range pdfs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		s.ingestFile(ctx, root, path, summary)
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("moved", summary.Moved).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Ingest run finished")

	return summary, nil
}

// listPDFs collects PDF paths under root, skipping the filed-away folders
func listPDFs(root string) ([]string, error) {
	skip := map[string]bool{
		folderPurchaseOrders: true,
		folderInvoices:       true,
		folderGoodsReceipts:  true,
		folderUnclassified:   true,
	}

	var pdfs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			pdfs = append(pdfs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pdfs, nil
}

// destFolder maps a document type to its filed-away folder
func destFolder(docType extraction.DocumentType) string {
	switch docType {
	case extraction.DocumentTypePurchaseOrder:
		return folderPurchaseOrders
	case extraction.DocumentTypeInvoice:
		return folderInvoices
	case extraction.DocumentTypeGoodsReceipt:
		return folderGoodsReceipts
	default:
		return folderUnclassified
	}
}

// ingestFile processes a single PDF and updates the summary counters
func (s *IngestService) ingestFile(ctx context.Context, root, path string, summary *IngestSummary) {
	exists, err := s.documentExists(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to check ingest dedup")
		s.countFailure(summary)
		return
	}
	if exists {
		log.Debug().Str("path", path).Msg("Skipping already-ingested PDF")
		summary.Skipped++
		if s.metrics != nil {
			s.metrics.IncrementCounter(metrics.CounterIngestSkipped)
		}
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read PDF")
		s.countFailure(summary)
		return
	}

	start := time.Now()
	result, err := s.extractor.ExtractDocument(ctx, data, path)
	if s.metrics != nil {
		s.metrics.RecordTimer(metrics.TimerExtraction, time.Since(start).Milliseconds())
	}
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to extract document")
		if s.metrics != nil {
			s.metrics.IncrementCounter(metrics.CounterExtractionFailures)
		}
		s.countFailure(summary)
		return
	}

	if result.DocumentType == extraction.DocumentTypeUnknown {
		log.Warn().Str("path", path).Msg("Unclassifiable document, filing under unclassified")
		if s.moveFile(root, path, folderUnclassified) == "" {
			s.countFailure(summary)
			return
		}
		summary.Moved++
		summary.Skipped++
		return
	}

	destPath := filepath.Join(root, destFolder(result.DocumentType), filepath.Base(path))
	identifier, err := s.persist(ctx, result, destPath)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to persist extracted document")
		s.countFailure(summary)
		return
	}

	summary.Processed++
	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterDocumentsIngested)
	}

	if s.moveFile(root, path, destFolder(result.DocumentType)) != "" {
		summary.Moved++
	}

	s.publishEvent(ctx, result.DocumentType, identifier, destPath)
	s.indexDocument(ctx, result, identifier)

	log.Info().
		Str("document_type", string(result.DocumentType)).
		Str("identifier", identifier).
		Str("path", destPath).
		Msg("Document ingested")
}

// documentExists reports whether any collection already carries the source path
func (s *IngestService) documentExists(ctx context.Context, path string) (bool, error) {
	if exists, err := s.poRepo.ExistsBySourcePath(ctx, path); err != nil || exists {
		return exists, err
	}
	if exists, err := s.invoiceRepo.ExistsBySourcePath(ctx, path); err != nil || exists {
		return exists, err
	}
	return s.receiptRepo.ExistsBySourcePath(ctx, path)
}

// persist upserts the extracted document with its final PDF location and
// returns the business identifier
func (s *IngestService) persist(ctx context.Context, result *extraction.DocumentExtraction, destPath string) (string, error) {
	switch result.DocumentType {
	case extraction.DocumentTypePurchaseOrder:
		result.PurchaseOrder.SourcePDFPath = &destPath
		return result.PurchaseOrder.PONumber, s.poRepo.Upsert(ctx, result.PurchaseOrder)
	case extraction.DocumentTypeInvoice:
		result.Invoice.SourcePDFPath = &destPath
		return result.Invoice.InvoiceNumber, s.invoiceRepo.Upsert(ctx, result.Invoice)
	case extraction.DocumentTypeGoodsReceipt:
		result.GoodsReceipt.SourcePDFPath = &destPath
		return result.GoodsReceipt.GRNNumber, s.receiptRepo.Upsert(ctx, result.GoodsReceipt)
	default:
		return "", errors.Errorf("cannot persist document type %q", result.DocumentType)
	}
}

// moveFile files the PDF away under the given folder, returning the new path
// or empty on failure. The record keeps the destination path either way, so a
// failed move only affects PDF streaming, not matching.
func (s *IngestService) moveFile(root, path, folder string) string {
	destDir := filepath.Join(root, folder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", destDir).Msg("Failed to create destination folder")
		return ""
	}

	destPath := filepath.Join(destDir, filepath.Base(path))
	if err := os.Rename(path, destPath); err != nil {
		log.Error().Err(err).Str("path", path).Str("dest", destPath).Msg("Failed to move PDF")
		return ""
	}
	return destPath
}

// publishEvent announces the ingested document on the bus, best effort
func (s *IngestService) publishEvent(ctx context.Context, docType extraction.DocumentType, identifier, destPath string) {
	if s.bus == nil {
		return
	}

	event := messaging.DocumentEvent{
		Event:         messaging.EventDocumentIngested,
		DocumentType:  string(docType),
		Identifier:    identifier,
		SourcePDFPath: destPath,
		IngestedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.bus.SendMessage(ctx, event); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Failed to publish document event")
	}
}

// indexDocument pushes searchable fields to Elasticsearch, best effort
func (s *IngestService) indexDocument(ctx context.Context, result *extraction.DocumentExtraction, identifier string) {
	if s.elastic == nil {
		return
	}

	fields := map[string]interface{}{}
	switch result.DocumentType {
	case extraction.DocumentTypePurchaseOrder:
		fields["po_number"] = result.PurchaseOrder.PONumber
		fields["vendor_name"] = result.PurchaseOrder.Vendor.Name
		fields["buyer_name"] = result.PurchaseOrder.Buyer.Name
		fields["currency"] = result.PurchaseOrder.Currency
		fields["grand_total"] = result.PurchaseOrder.GrandTotal.InexactFloat64()
	case extraction.DocumentTypeInvoice:
		fields["reference_po"] = result.Invoice.ReferencePO
		fields["vendor_name"] = result.Invoice.Vendor.Name
		fields["buyer_name"] = result.Invoice.Buyer.Name
		fields["currency"] = result.Invoice.Currency
		fields["grand_total"] = result.Invoice.GrandTotal.InexactFloat64()
	case extraction.DocumentTypeGoodsReceipt:
		fields["reference_po"] = result.GoodsReceipt.ReferencePO
		fields["vendor_name"] = result.GoodsReceipt.Vendor.Name
		fields["buyer_name"] = result.GoodsReceipt.Receiver.Name
	}

	if err := s.elastic.IndexDocument(ctx, string(result.DocumentType), identifier, fields); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Failed to index document")
	}
}

func (s *IngestService) countFailure(summary *IngestSummary) {
	summary.Failed++
	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterIngestFailures)
	}
}
