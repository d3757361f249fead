package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"example.com/procurement/services/match/internal/services"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// DocumentsHandler serves the ingested document collections, search, and the
// source PDFs behind them
type DocumentsHandler struct {
	service      *services.ReconciliationService
	dataLakeRoot string
	tracer       tracing.Tracer
}

// NewDocumentsHandler creates a new documents handler
func NewDocumentsHandler(service *services.ReconciliationService, dataLakeRoot string, tracer tracing.Tracer) *DocumentsHandler {
	return &DocumentsHandler{
		service:      service,
		dataLakeRoot: dataLakeRoot,
		tracer:       tracer,
	}
}

// HandleListPurchaseOrders returns all purchase orders
func (h *DocumentsHandler) HandleListPurchaseOrders(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-purchase-orders")
	defer h.tracer.EndTransaction(txn)

	pos, err := h.service.ListPurchaseOrders(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list purchase orders")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pos)
}

// HandleListInvoices returns all invoices
func (h *DocumentsHandler) HandleListInvoices(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-invoices")
	defer h.tracer.EndTransaction(txn)

	invoices, err := h.service.ListInvoices(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list invoices")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, invoices)
}

// HandleListGoodsReceipts returns all goods receipts
func (h *DocumentsHandler) HandleListGoodsReceipts(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-goods-receipts")
	defer h.tracer.EndTransaction(txn)

	receipts, err := h.service.ListGoodsReceipts(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list goods receipts")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, receipts)
}

// HandleSearch runs a free-text search over the indexed documents
func (h *DocumentsHandler) HandleSearch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-documents")
	defer h.tracer.EndTransaction(txn)

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	h.tracer.AddAttribute(txn, "query", query)

	hits, err := h.service.SearchDocuments(c, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Search failed")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"query": query, "results": hits})
}

// HandleGetPDF streams a source PDF from the data lake. The path must resolve
// inside the data lake root.
func (h *DocumentsHandler) HandleGetPDF(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-pdf")
	defer h.tracer.EndTransaction(txn)

	requested := c.Query("path")
	if requested == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter path is required"})
		return
	}

	resolved, ok := h.resolvePDFPath(requested)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "path is outside the data lake"})
		return
	}

	if _, err := os.Stat(resolved); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "PDF not found"})
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.File(resolved)
}

// resolvePDFPath confines the requested path to the data lake root
func (h *DocumentsHandler) resolvePDFPath(requested string) (string, bool) {
	root, err := filepath.Abs(h.dataLakeRoot)
	if err != nil {
		return "", false
	}

	path := requested
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", false
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}

// RegisterRoutes registers the handler's routes
func (h *DocumentsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/purchase-orders", h.HandleListPurchaseOrders)
	router.GET("/api/invoices", h.HandleListInvoices)
	router.GET("/api/goods-receipts", h.HandleListGoodsReceipts)
	router.GET("/api/search", h.HandleSearch)
	router.GET("/api/pdf", h.HandleGetPDF)
}
