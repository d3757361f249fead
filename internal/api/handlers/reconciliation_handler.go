package handlers

import (
	"fmt"
	"net/http"
	"time"

	"example.com/procurement/services/match/internal/services"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReconciliationHandler handles reconciliation-related HTTP requests
type ReconciliationHandler struct {
	service *services.ReconciliationService
	tracer  tracing.Tracer
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(service *services.ReconciliationService, tracer tracing.Tracer) *ReconciliationHandler {
	return &ReconciliationHandler{
		service: service,
		tracer:  tracer,
	}
}

// DecisionRequest represents an incoming approve/reject decision
type DecisionRequest struct {
	PONumber string `json:"po_number" binding:"required"`
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
	User     string `json:"user"`
}

// HandleGetReconciliation returns the full three-way match report
func (h *ReconciliationHandler) HandleGetReconciliation(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-reconciliation")
	defer h.tracer.EndTransaction(txn)

	report, err := h.service.ComputeReconciliation(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute reconciliation")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// HandlePostDecision records an approve/reject decision for a PO
func (h *ReconciliationHandler) HandlePostDecision(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-post-decision")
	defer h.tracer.EndTransaction(txn)

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid decision request body")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddAttribute(txn, "po_number", req.PONumber)
	h.tracer.AddAttribute(txn, "decision", req.Decision)

	decision, err := h.service.RecordDecision(c, req.PONumber, req.Decision, req.Comment, req.User)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDecisionValue) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("po_number", req.PONumber).Msg("Failed to record decision")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, decision)
}

// HandleGetAnalytics returns aggregate reconciliation counts
func (h *ReconciliationHandler) HandleGetAnalytics(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-analytics")
	defer h.tracer.EndTransaction(txn)

	summary, err := h.service.ComputeAnalytics(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute analytics")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HandleExportReport streams the reconciliation report as an XLSX workbook
func (h *ReconciliationHandler) HandleExportReport(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-export-report")
	defer h.tracer.EndTransaction(txn)

	f, err := h.service.ExportReport(c)
	if err != nil {
		log.Error().Err(err).Msg("Failed to export reconciliation report")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("reconciliation-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := f.Write(c.Writer); err != nil {
		log.Error().Err(err).Msg("Failed to write XLSX response")
		h.tracer.RecordError(txn, err)
	}
}

// RegisterRoutes registers the handler's routes
func (h *ReconciliationHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/reconciliation", h.HandleGetReconciliation)
	router.POST("/api/reconciliation/decision", h.HandlePostDecision)
	router.GET("/api/reconciliation/export", h.HandleExportReport)
	router.GET("/api/analytics", h.HandleGetAnalytics)
}
