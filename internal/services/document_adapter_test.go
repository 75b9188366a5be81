package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
)

func TestChallanDocumentAdapter(t *testing.T) {
	productID := uuid.New()
	plan := &models.AllocationPlan{
		Lines:      []models.AllocationLine{{Location: "MAIN", AllocatedQuantity: 3}},
		CanFulfill: true,
	}
	challan := &models.DeliveryChallan{
		ChallanNumber: "DC-202608-000042",
		Status:        models.DocumentStatusSent,
		StockConsumed: true,
		Items: []models.ChallanItem{
			{ProductID: productID, Quantity: 3, Rate: decimal.NewFromInt(100), StockAllocation: plan},
		},
	}

	doc := challanDocument{challan: challan}
	assert.Equal(t, "DC-202608-000042", doc.ReferenceID())
	assert.Equal(t, models.ReferenceTypeChallan, doc.ReferenceType())
	assert.Equal(t, models.DocumentStatusSent, doc.Status())
	assert.True(t, doc.ConsumedStock())

	items := doc.Items()
	require.Len(t, items, 1)
	assert.Equal(t, productID, items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, plan, items[0].Allocation)
}

func TestInvoiceDocumentAdapter(t *testing.T) {
	productID := uuid.New()
	invoice := &models.SalesInvoice{
		InvoiceNumber: "INV-202608-000007",
		Status:        models.DocumentStatusDraft,
		Items: []models.InvoiceItem{
			{ProductID: productID, Quantity: 2, Rate: decimal.NewFromInt(50)},
		},
	}

	doc := invoiceDocument{invoice: invoice}
	assert.Equal(t, "INV-202608-000007", doc.ReferenceID())
	assert.Equal(t, models.ReferenceTypeInvoice, doc.ReferenceType())
	assert.False(t, doc.ConsumedStock())

	items := doc.Items()
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Allocation)
}

func TestApplyReportToPlansRecordsConsumedBins(t *testing.T) {
	productID := uuid.New()
	report := &reconcile.Report{
		ReferenceID:   "DC-202608-000001",
		StockConsumed: true,
		Products: []reconcile.ProductResult{
			{
				ProductID: productID,
				Entries: []models.StockLedgerEntry{
					{ProductID: productID, Location: "MAIN", Room: "A", Quantity: -3, PreviousQuantity: 5, ResultingQuantity: 2},
					{ProductID: productID, Location: "MAIN", Room: "B", Quantity: -2, PreviousQuantity: 4, ResultingQuantity: 2},
				},
			},
		},
	}

	plans := applyReportToPlans(nil, report)
	require.Contains(t, plans, productID)

	plan := plans[productID]
	assert.True(t, plan.CanFulfill)
	require.Len(t, plan.Lines, 2)
	assert.Equal(t, "A", plan.Lines[0].Room)
	assert.Equal(t, 3, plan.Lines[0].AllocatedQuantity)
	assert.Equal(t, 2, plan.Lines[0].AvailableQuantity)
	assert.Equal(t, "B", plan.Lines[1].Room)
	assert.Equal(t, 2, plan.Lines[1].AllocatedQuantity)
	assert.Equal(t, 5, plan.TotalAllocated())
}

func TestApplyReportToPlansFoldsPartialRestore(t *testing.T) {
	productID := uuid.New()
	old := map[uuid.UUID]*models.AllocationPlan{
		productID: {
			Lines: []models.AllocationLine{
				{Location: "MAIN", Room: "A", AllocatedQuantity: 3},
				{Location: "MAIN", Room: "B", AllocatedQuantity: 2},
			},
			CanFulfill: true,
		},
	}

	// An update returned 2 units into bin B: its line empties and drops.
	report := &reconcile.Report{
		StockConsumed: true,
		Products: []reconcile.ProductResult{
			{
				ProductID: productID,
				Entries: []models.StockLedgerEntry{
					{ProductID: productID, Location: "MAIN", Room: "B", Quantity: 2, PreviousQuantity: 2, ResultingQuantity: 4},
				},
			},
		},
	}

	plans := applyReportToPlans(old, report)
	require.Contains(t, plans, productID)
	plan := plans[productID]
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, "A", plan.Lines[0].Room)
	assert.Equal(t, 3, plan.Lines[0].AllocatedQuantity)

	// The input plan is never mutated.
	assert.Len(t, old[productID].Lines, 2)
}

func TestApplyReportToPlansClearsWhenNothingConsumed(t *testing.T) {
	productID := uuid.New()
	old := map[uuid.UUID]*models.AllocationPlan{
		productID: {
			Lines:      []models.AllocationLine{{Location: "MAIN", AllocatedQuantity: 5}},
			CanFulfill: true,
		},
	}

	report := &reconcile.Report{StockConsumed: false}
	assert.Nil(t, applyReportToPlans(old, report))
	assert.Nil(t, applyReportToPlans(old, nil))
}

func TestApplyReportToPlansDropsFullyRestoredProduct(t *testing.T) {
	productID := uuid.New()
	old := map[uuid.UUID]*models.AllocationPlan{
		productID: {
			Lines:      []models.AllocationLine{{Location: "MAIN", Room: "A", AllocatedQuantity: 3}},
			CanFulfill: true,
		},
	}

	report := &reconcile.Report{
		StockConsumed: true, // another product still holds stock
		Products: []reconcile.ProductResult{
			{
				ProductID: productID,
				Entries: []models.StockLedgerEntry{
					{ProductID: productID, Location: "MAIN", Room: "A", Quantity: 3, PreviousQuantity: 1, ResultingQuantity: 4},
				},
			},
		},
	}

	plans := applyReportToPlans(old, report)
	assert.NotContains(t, plans, productID)
}

func TestBuildChallanItemsComputesAmount(t *testing.T) {
	productID := uuid.New()
	items := buildChallanItems("tenant-1", []models.DocumentItemRequest{
		{ProductID: productID, Quantity: 4, Rate: decimal.NewFromFloat(12.50)},
	})

	require.Len(t, items, 1)
	assert.Equal(t, "tenant-1", items[0].TenantID)
	assert.Equal(t, productID, items[0].ProductID)
	assert.Equal(t, 4, items[0].Quantity)
	assert.True(t, decimal.NewFromInt(50).Equal(items[0].Amount))
}

func TestCreateChallanRejectsUnknownStatus(t *testing.T) {
	// Status validation happens before any repository access, so a service
	// with nil dependencies exercises it.
	svc := NewChallanService(nil, nil, reconcile.NewEngine(nil), nil, nil)

	badStatus := models.DocumentStatus("SHIPPED")
	_, err := svc.CreateChallan(context.Background(), "tenant-1", "user-1", &models.CreateChallanRequest{
		CustomerName: "Acme Traders",
		Items:        []models.DocumentItemRequest{{ProductID: uuid.New(), Quantity: 1}},
		Status:       &badStatus,
	})

	var invalid *InvalidStatusError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, badStatus, invalid.Status)
}

func TestCreateInvoiceRejectsUnknownStatus(t *testing.T) {
	svc := NewInvoiceService(nil, nil, reconcile.NewEngine(nil), nil, nil)

	badStatus := models.DocumentStatus("PAID")
	_, err := svc.CreateInvoice(context.Background(), "tenant-1", "user-1", &models.CreateInvoiceRequest{
		CustomerName: "Acme Traders",
		Items:        []models.DocumentItemRequest{{ProductID: uuid.New(), Quantity: 1}},
		Status:       &badStatus,
	})

	var invalid *InvalidStatusError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, badStatus, invalid.Status)
}
