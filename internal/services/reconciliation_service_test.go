package services

import (
	"context"
	"testing"
	"time"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/matching"
	"example.com/procurement/services/match/internal/metrics"
	"example.com/procurement/services/match/internal/models"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock repositories for testing
type MockPurchaseOrderRepository struct {
	mock.Mock
}

func (m *MockPurchaseOrderRepository) Upsert(ctx context.Context, po *models.PurchaseOrder) error {
	args := m.Called(ctx, po)
	return args.Error(0)
}

func (m *MockPurchaseOrderRepository) List(ctx context.Context) ([]models.PurchaseOrder, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.PurchaseOrder), args.Error(1)
}

func (m *MockPurchaseOrderRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Upsert(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) List(ctx context.Context) ([]models.Invoice, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

type MockGoodsReceiptRepository struct {
	mock.Mock
}

func (m *MockGoodsReceiptRepository) Upsert(ctx context.Context, receipt *models.GoodsReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockGoodsReceiptRepository) List(ctx context.Context) ([]models.GoodsReceipt, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.GoodsReceipt), args.Error(1)
}

func (m *MockGoodsReceiptRepository) ExistsBySourcePath(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

type MockDecisionRepository struct {
	mock.Mock
}

func (m *MockDecisionRepository) Upsert(ctx context.Context, decision *models.ReconciliationDecision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

func (m *MockDecisionRepository) GetByPONumber(ctx context.Context, poNumber string) (*models.ReconciliationDecision, error) {
	args := m.Called(ctx, poNumber)
	return args.Get(0).(*models.ReconciliationDecision), args.Error(1)
}

func (m *MockDecisionRepository) List(ctx context.Context) ([]models.ReconciliationDecision, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.ReconciliationDecision), args.Error(1)
}

// newTestService wires a service around mocks with cache and search disabled
func newTestService(t *testing.T, poRepo *MockPurchaseOrderRepository, invoiceRepo *MockInvoiceRepository, receiptRepo *MockGoodsReceiptRepository, decisionRepo *MockDecisionRepository) *ReconciliationService {
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)

	return &ReconciliationService{
		poRepo:       poRepo,
		invoiceRepo:  invoiceRepo,
		receiptRepo:  receiptRepo,
		decisionRepo: decisionRepo,
		metrics:      metrics.NewMetrics(),
		tracer:       tracer,
		opts:         matching.DefaultOptions(),
	}
}

func testPO(poNumber string, total float64) models.PurchaseOrder {
	return models.PurchaseOrder{
		ID:         uuid.New(),
		PONumber:   poNumber,
		Currency:   "USD",
		GrandTotal: decimal.NewFromFloat(total),
	}
}

func testInvoice(invoiceNumber, referencePO string, total float64) models.Invoice {
	return models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: invoiceNumber,
		ReferencePO:   referencePO,
		Currency:      "USD",
		GrandTotal:    decimal.NewFromFloat(total),
	}
}

func testReceipt(grnNumber, referencePO string) models.GoodsReceipt {
	return models.GoodsReceipt{
		ID:          uuid.New(),
		GRNNumber:   grnNumber,
		ReferencePO: referencePO,
	}
}

func TestComputeReconciliation(t *testing.T) {
	poRepo := new(MockPurchaseOrderRepository)
	invoiceRepo := new(MockInvoiceRepository)
	receiptRepo := new(MockGoodsReceiptRepository)
	decisionRepo := new(MockDecisionRepository)

	poRepo.On("List", mock.Anything).Return([]models.PurchaseOrder{
		testPO("PO-10001", 500),
		testPO("PO-10002", 750),
	}, nil)
	invoiceRepo.On("List", mock.Anything).Return([]models.Invoice{
		testInvoice("INV-000001", "PO-10001", 500),
		testInvoice("INV-000002", "PO-99999", 120),
	}, nil)
	receiptRepo.On("List", mock.Anything).Return([]models.GoodsReceipt{
		testReceipt("GR-10001", "PO-10001"),
		testReceipt("GR-10002", "PO-10002"),
	}, nil)
	decisionRepo.On("List", mock.Anything).Return([]models.ReconciliationDecision{
		{PONumber: "PO-10001", Decision: matching.DecisionApproved, DecidedBy: "JA"},
	}, nil)

	service := newTestService(t, poRepo, invoiceRepo, receiptRepo, decisionRepo)

	report, err := service.ComputeReconciliation(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	// PO-backed results first, ghost identifiers last
	require.Equal(t, "PO-10001", report.Results[0].PONumber)
	require.Equal(t, matching.StatusMatched, report.Results[0].Status)
	require.NotNil(t, report.Results[0].Decision)
	require.Equal(t, matching.DecisionApproved, report.Results[0].Decision.Decision)

	require.Equal(t, "PO-10002", report.Results[1].PONumber)
	require.Equal(t, matching.StatusMissingInvoice, report.Results[1].Status)
	require.Nil(t, report.Results[1].Decision)

	require.Equal(t, "PO-99999", report.Results[2].PONumber)
	require.Equal(t, matching.StatusGhostPO, report.Results[2].Status)
	require.Nil(t, report.Results[2].PurchaseOrder)

	poRepo.AssertExpectations(t)
	invoiceRepo.AssertExpectations(t)
	receiptRepo.AssertExpectations(t)
	decisionRepo.AssertExpectations(t)
}

func TestRecordDecisionRejectsInvalidValue(t *testing.T) {
	decisionRepo := new(MockDecisionRepository)
	service := newTestService(t, nil, nil, nil, decisionRepo)

	_, err := service.RecordDecision(context.Background(), "PO-10001", "maybe", "", "")
	require.ErrorIs(t, err, ErrInvalidDecisionValue)

	_, err = service.RecordDecision(context.Background(), "", matching.DecisionApproved, "", "")
	require.Error(t, err)

	// Nothing reaches the store on a validation failure
	decisionRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestRecordDecisionDefaultsUser(t *testing.T) {
	decisionRepo := new(MockDecisionRepository)
	decisionRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*models.ReconciliationDecision")).Return(nil)

	service := newTestService(t, nil, nil, nil, decisionRepo)

	before := time.Now().UTC()
	decision, err := service.RecordDecision(context.Background(), "PO-10001", matching.DecisionRejected, "price hike not approved", "")
	require.NoError(t, err)
	require.Equal(t, "PO-10001", decision.PONumber)
	require.Equal(t, matching.DecisionRejected, decision.Decision)
	require.Equal(t, defaultDecisionUser, decision.DecidedBy)
	require.False(t, decision.DecidedAt.Before(before))

	decisionRepo.AssertExpectations(t)
}

func TestRecordDecisionForGhostPO(t *testing.T) {
	decisionRepo := new(MockDecisionRepository)
	decisionRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*models.ReconciliationDecision")).Return(nil)

	service := newTestService(t, nil, nil, nil, decisionRepo)

	// A ghost identifier never resolves to a stored PO; approving it is still valid
	decision, err := service.RecordDecision(context.Background(), "PO-99999", matching.DecisionApproved, "vendor confirmed order by phone", "finance-team")
	require.NoError(t, err)
	require.Equal(t, "finance-team", decision.DecidedBy)

	decisionRepo.AssertExpectations(t)
}

func TestGetDecision(t *testing.T) {
	decisionRepo := new(MockDecisionRepository)
	recorded := &models.ReconciliationDecision{
		ID:       uuid.New(),
		PONumber: "PO-10001",
		Decision: matching.DecisionApproved,
	}
	decisionRepo.On("GetByPONumber", mock.Anything, "PO-10001").Return(recorded, nil)

	service := newTestService(t, nil, nil, nil, decisionRepo)

	decision, err := service.GetDecision(context.Background(), "PO-10001")
	require.NoError(t, err)
	require.Equal(t, recorded.ID, decision.ID)

	decisionRepo.AssertExpectations(t)
}

func TestComputeAnalytics(t *testing.T) {
	poRepo := new(MockPurchaseOrderRepository)
	invoiceRepo := new(MockInvoiceRepository)
	receiptRepo := new(MockGoodsReceiptRepository)
	decisionRepo := new(MockDecisionRepository)

	poRepo.On("List", mock.Anything).Return([]models.PurchaseOrder{
		testPO("PO-10001", 500),
		testPO("PO-10002", 750),
	}, nil)
	invoiceRepo.On("List", mock.Anything).Return([]models.Invoice{
		testInvoice("INV-000001", "PO-10001", 500),
		testInvoice("INV-000002", "PO-10002", 990), // price hike
	}, nil)
	receiptRepo.On("List", mock.Anything).Return([]models.GoodsReceipt{
		testReceipt("GR-10001", "PO-10001"),
		testReceipt("GR-10002", "PO-10002"),
	}, nil)
	decisionRepo.On("List", mock.Anything).Return([]models.ReconciliationDecision{
		{PONumber: "PO-10002", Decision: matching.DecisionRejected, DecidedBy: "JA"},
	}, nil)

	service := newTestService(t, poRepo, invoiceRepo, receiptRepo, decisionRepo)

	summary, err := service.ComputeAnalytics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalPurchaseOrders)
	require.Equal(t, 2, summary.TotalInvoices)
	require.Equal(t, 2, summary.TotalGoodsReceipts)
	require.Equal(t, 1, summary.Matched)
	require.Equal(t, 1, summary.Issues)
	require.Equal(t, 0, summary.Approved)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, 1, summary.Pending)
}

func TestExportReport(t *testing.T) {
	poRepo := new(MockPurchaseOrderRepository)
	invoiceRepo := new(MockInvoiceRepository)
	receiptRepo := new(MockGoodsReceiptRepository)
	decisionRepo := new(MockDecisionRepository)

	poRepo.On("List", mock.Anything).Return([]models.PurchaseOrder{testPO("PO-10001", 500)}, nil)
	invoiceRepo.On("List", mock.Anything).Return([]models.Invoice{testInvoice("INV-000001", "PO-10001", 512.50)}, nil)
	receiptRepo.On("List", mock.Anything).Return([]models.GoodsReceipt{testReceipt("GR-10001", "PO-10001")}, nil)
	decisionRepo.On("List", mock.Anything).Return([]models.ReconciliationDecision{}, nil)

	service := newTestService(t, poRepo, invoiceRepo, receiptRepo, decisionRepo)

	f, err := service.ExportReport(context.Background())
	require.NoError(t, err)

	status, err := f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	require.Equal(t, string(matching.StatusAmountMismatch), status)

	delta, err := f.GetCellValue("Sheet1", "E2")
	require.NoError(t, err)
	require.Equal(t, "12.50", delta)
}
