package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/cache"
	"example.com/procurement/services/match/internal/matching"
	"example.com/procurement/services/match/internal/messaging"
	"example.com/procurement/services/match/internal/metrics"
	"example.com/procurement/services/match/internal/models"
	"example.com/procurement/services/match/internal/repositories"
	"example.com/procurement/services/match/internal/search"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ErrInvalidDecisionValue rejects a decision outside the recognized set.
// Nothing is written when this is returned.
var ErrInvalidDecisionValue = errors.New(`decision must be "approved" or "rejected"`)

// defaultDecisionUser is recorded when the caller supplies no acting user
const defaultDecisionUser = "JA"

// reportCacheTTL bounds staleness of the cached reconciliation report
const reportCacheTTL = 30 * time.Second

// ReconciliationService loads the document collections, runs the matching
// engine over them, and manages the decision ledger
type ReconciliationService struct {
	poRepo       repositories.PurchaseOrderRepository
	invoiceRepo  repositories.InvoiceRepository
	receiptRepo  repositories.GoodsReceiptRepository
	decisionRepo repositories.DecisionRepository
	cache        *cache.RedisCache
	elastic      *search.ElasticClient
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
	opts         matching.Options
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	cfg config.MatchingConfig,
) *ReconciliationService {
	opts := matching.DefaultOptions()
	if cfg.AmountTolerance > 0 {
		opts.AmountTolerance = decimal.NewFromFloat(cfg.AmountTolerance)
	}

	return &ReconciliationService{
		poRepo:       repositories.NewPurchaseOrderRepository(db, readOnlyDB),
		invoiceRepo:  repositories.NewInvoiceRepository(db, readOnlyDB),
		receiptRepo:  repositories.NewGoodsReceiptRepository(db, readOnlyDB),
		decisionRepo: repositories.NewDecisionRepository(db, readOnlyDB),
		cache:        redisCache,
		elastic:      elasticClient,
		metrics:      metricsCollector,
		tracer:       tracer,
		opts:         opts,
	}
}

// ComputeReconciliation returns the full three-way match report with recorded
// decisions merged in, serving a short-lived cached copy when one exists
func (s *ReconciliationService) ComputeReconciliation(ctx context.Context) (*matching.Report, error) {
	if s.cache != nil {
		var cached matching.Report
		if err := s.cache.Get(ctx, cache.ReportCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	report, err := s.computeReport(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ReportCacheKey, report, reportCacheTTL); err != nil {
			log.Debug().Err(err).Msg("Failed to cache reconciliation report")
		}
	}

	return report, nil
}

// RefreshReport recomputes the reconciliation report, replaces the cached
// copy, and re-indexes every result's match outcome. Used by the worker on
// ingest events and on the fallback schedule.
func (s *ReconciliationService) RefreshReport(ctx context.Context) error {
	report, err := s.computeReport(ctx)
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.ReportCacheKey, report, reportCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh cached reconciliation report")
		}
		// Ingest events change the document collections too
		if err := s.cache.Delete(ctx,
			cache.AnalyticsCacheKey,
			cache.GetDocumentsCacheKey("purchase_orders"),
			cache.GetDocumentsCacheKey("invoices"),
			cache.GetDocumentsCacheKey("goods_receipts")); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate cached document lists")
		}
	}

	if s.elastic != nil {
		for i := range report.Results {
			if err := s.elastic.IndexReconciliation(ctx, &report.Results[i]); err != nil {
				log.Warn().Err(err).
					Str("po_number", report.Results[i].PONumber).
					Msg("Failed to index reconciliation result")
			}
		}
	}

	log.Info().Int("results", len(report.Results)).Msg("Reconciliation report refreshed")
	return nil
}

// computeReport loads the collections and runs the matching engine
func (s *ReconciliationService) computeReport(ctx context.Context) (*matching.Report, error) {
	txn := s.tracer.StartTransaction("compute-reconciliation")
	defer s.tracer.EndTransaction(txn)
	start := time.Now()

	span := s.tracer.StartSpan("load-collections", txn)
	pos, invoices, receipts, decisions, err := s.loadCollections(ctx)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	matchSpan := s.tracer.StartSpan("match-documents", txn)
	report := matching.Reconcile(pos, invoices, receipts, s.opts)
	matching.AttachDecisions(report.Results, decisions)
	matchSpan.End()

	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterReconciliationRuns)
		s.metrics.RecordTimer(metrics.TimerReconciliation, time.Since(start).Milliseconds())
	}

	return &report, nil
}

// loadCollections reads the three document sets and the decision ledger
func (s *ReconciliationService) loadCollections(ctx context.Context) ([]models.PurchaseOrder, []models.Invoice, []models.GoodsReceipt, []models.ReconciliationDecision, error) {
	pos, err := s.poRepo.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to load purchase orders")
	}

	invoices, err := s.invoiceRepo.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to load invoices")
	}

	receipts, err := s.receiptRepo.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to load goods receipts")
	}

	decisions, err := s.decisionRepo.List(ctx)
	if err != nil {
		return nil, nil, nil, nil, errors.Wrap(err, "failed to load decisions")
	}

	return pos, invoices, receipts, decisions, nil
}

// RecordDecision validates and upserts a human approve/reject decision for a
// PO identifier. The identifier does not have to resolve to a stored PO:
// approving a ghost or unmatched PO is a legitimate human override.
func (s *ReconciliationService) RecordDecision(ctx context.Context, poNumber, decisionValue, comment, user string) (*models.ReconciliationDecision, error) {
	if poNumber == "" {
		return nil, errors.New("po_number is required")
	}
	if !matching.ValidDecision(decisionValue) {
		return nil, ErrInvalidDecisionValue
	}
	if user == "" {
		user = defaultDecisionUser
	}

	decision := &models.ReconciliationDecision{
		ID:        uuid.New(),
		PONumber:  poNumber,
		Decision:  decisionValue,
		Comment:   comment,
		DecidedBy: user,
		DecidedAt: time.Now().UTC(),
	}

	if err := s.decisionRepo.Upsert(ctx, decision); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementCounter(metrics.CounterDecisionsRecorded)
	}
	s.invalidateComputedViews(ctx)

	log.Info().
		Str("po_number", poNumber).
		Str("decision", decisionValue).
		Str("decided_by", user).
		Msg("Reconciliation decision recorded")

	return decision, nil
}

// GetDecision returns the latest decision for a PO, or repositories.ErrNotFound
func (s *ReconciliationService) GetDecision(ctx context.Context, poNumber string) (*models.ReconciliationDecision, error) {
	return s.decisionRepo.GetByPONumber(ctx, poNumber)
}

// ComputeAnalytics folds the reconciliation report into summary counts
func (s *ReconciliationService) ComputeAnalytics(ctx context.Context) (*matching.Summary, error) {
	if s.cache != nil {
		var cached matching.Summary
		if err := s.cache.Get(ctx, cache.AnalyticsCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	pos, invoices, receipts, decisions, err := s.loadCollections(ctx)
	if err != nil {
		return nil, err
	}

	report := matching.Reconcile(pos, invoices, receipts, s.opts)
	matching.AttachDecisions(report.Results, decisions)
	summary := matching.Summarize(report, len(pos), len(invoices), len(receipts))

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.AnalyticsCacheKey, summary, reportCacheTTL); err != nil {
			log.Debug().Err(err).Msg("Failed to cache analytics summary")
		}
	}

	return &summary, nil
}

// ListPurchaseOrders returns all purchase orders sorted by po_number
func (s *ReconciliationService) ListPurchaseOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	key := cache.GetDocumentsCacheKey("purchase_orders")
	if s.cache != nil {
		var cached []models.PurchaseOrder
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	pos, err := s.poRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheDocuments(ctx, key, pos)
	return pos, nil
}

// ListInvoices returns all invoices sorted by invoice_number
func (s *ReconciliationService) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	key := cache.GetDocumentsCacheKey("invoices")
	if s.cache != nil {
		var cached []models.Invoice
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	invoices, err := s.invoiceRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheDocuments(ctx, key, invoices)
	return invoices, nil
}

// ListGoodsReceipts returns all goods receipts sorted by grn_number
func (s *ReconciliationService) ListGoodsReceipts(ctx context.Context) ([]models.GoodsReceipt, error) {
	key := cache.GetDocumentsCacheKey("goods_receipts")
	if s.cache != nil {
		var cached []models.GoodsReceipt
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	receipts, err := s.receiptRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheDocuments(ctx, key, receipts)
	return receipts, nil
}

// cacheDocuments stores a document list under the short report TTL
func (s *ReconciliationService) cacheDocuments(ctx context.Context, key string, documents interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, documents, reportCacheTTL); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to cache document list")
	}
}

// SearchDocuments runs a free-text search over the indexed documents
func (s *ReconciliationService) SearchDocuments(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if s.elastic == nil {
		return nil, errors.New("search is not available")
	}
	return s.elastic.SearchDocuments(ctx, query)
}

// ExportReport renders the reconciliation report as an XLSX workbook
func (s *ReconciliationService) ExportReport(ctx context.Context) (*excelize.File, error) {
	report, err := s.ComputeReconciliation(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Sheet1"

	headers := []string{
		"PO Number", "Status", "PO Total", "Invoice Total", "Delta",
		"Invoices", "Goods Receipts", "Issues", "Decision", "Decided By",
	}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build header cell name")
		}
		f.SetCellValue(sheet, cell, header)
	}

	for i, result := range report.Results {
		row := i + 2
		values := exportRow(&result, s.opts)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, errors.Wrap(err, "failed to build data cell name")
			}
			f.SetCellValue(sheet, cell, value)
		}
	}

	return f, nil
}

// exportRow flattens one reconciliation result into spreadsheet cells
func exportRow(result *matching.Result, opts matching.Options) []interface{} {
	poTotal, invoiceTotal, delta := "", "", ""
	if result.PurchaseOrder != nil {
		poTotal = result.PurchaseOrder.GrandTotal.StringFixed(2)
		if len(result.Invoices) > 0 {
			cmp := matching.CompareAmounts(result.PurchaseOrder, result.Invoices, opts.AmountTolerance)
			invoiceTotal = cmp.InvoiceTotal.StringFixed(2)
			delta = cmp.Delta.StringFixed(2)
		}
	}

	invoiceNumbers := make([]string, 0, len(result.Invoices))
	for _, inv := range result.Invoices {
		invoiceNumbers = append(invoiceNumbers, inv.InvoiceNumber)
	}
	grnNumbers := make([]string, 0, len(result.GoodsReceipts))
	for _, grn := range result.GoodsReceipts {
		grnNumbers = append(grnNumbers, grn.GRNNumber)
	}

	decision, decidedBy := "", ""
	if result.Decision != nil {
		decision = result.Decision.Decision
		decidedBy = result.Decision.DecidedBy
	}

	return []interface{}{
		result.PONumber,
		string(result.Status),
		poTotal,
		invoiceTotal,
		delta,
		joinNonEmpty(invoiceNumbers),
		joinNonEmpty(grnNumbers),
		joinNonEmpty(result.Issues),
		decision,
		decidedBy,
	}
}

func joinNonEmpty(values []string) string {
	out := ""
	for _, v := range values {
		if v == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += v
	}
	return out
}

// ProcessDocumentMessage handles one ingest event from the queue by
// refreshing the reconciliation report
func (s *ReconciliationService) ProcessDocumentMessage(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error {
	event, err := extractDocumentEvent(message)
	if err != nil {
		return errors.Wrap(err, "failed to extract document event")
	}

	s.tracer.AddAttribute(txn, "document_type", event.DocumentType)
	s.tracer.AddAttribute(txn, "identifier", event.Identifier)

	log.Info().
		Str("event", event.Event).
		Str("document_type", event.DocumentType).
		Str("identifier", event.Identifier).
		Msg("Processing document event")

	span := s.tracer.StartSpan("refresh-report", txn)
	err = s.RefreshReport(ctx)
	span.End()
	if err != nil {
		return errors.Wrap(err, "failed to refresh report after document event")
	}

	return nil
}

// extractDocumentEvent decodes a queue message body
func extractDocumentEvent(message *azservicebus.ReceivedMessage) (*messaging.DocumentEvent, error) {
	var event messaging.DocumentEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal document event")
	}
	if event.Event == "" {
		return nil, fmt.Errorf("document event has no event type")
	}
	return &event, nil
}

// invalidateComputedViews drops the cached report and analytics after a write
func (s *ReconciliationService) invalidateComputedViews(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ReportCacheKey, cache.AnalyticsCacheKey); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached reconciliation views")
	}
}
