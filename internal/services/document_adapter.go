package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"stock-ledger-service/internal/events"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
)

// InvalidStatusError reports a document status that is not part of the
// lifecycle. It is a request validation failure, distinct from an invalid
// transition between two valid statuses.
type InvalidStatusError struct {
	Status models.DocumentStatus
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q", string(e.Status))
}

// challanDocument adapts a delivery challan to the reconciliation engine's
// document view.
type challanDocument struct {
	challan *models.DeliveryChallan
}

func (d challanDocument) Items() []reconcile.DocumentItem {
	return challanItemsToDocumentItems(d.challan.Items)
}

func (d challanDocument) Status() models.DocumentStatus { return d.challan.Status }
func (d challanDocument) ReferenceID() string           { return d.challan.ChallanNumber }
func (d challanDocument) ReferenceType() string         { return models.ReferenceTypeChallan }
func (d challanDocument) ConsumedStock() bool           { return d.challan.StockConsumed }

// invoiceDocument adapts a sales invoice to the engine's document view.
type invoiceDocument struct {
	invoice *models.SalesInvoice
}

func (d invoiceDocument) Items() []reconcile.DocumentItem {
	return invoiceItemsToDocumentItems(d.invoice.Items)
}

func (d invoiceDocument) Status() models.DocumentStatus { return d.invoice.Status }
func (d invoiceDocument) ReferenceID() string           { return d.invoice.InvoiceNumber }
func (d invoiceDocument) ReferenceType() string         { return models.ReferenceTypeInvoice }
func (d invoiceDocument) ConsumedStock() bool           { return d.invoice.StockConsumed }

func challanItemsToDocumentItems(items []models.ChallanItem) []reconcile.DocumentItem {
	out := make([]reconcile.DocumentItem, 0, len(items))
	for _, item := range items {
		out = append(out, reconcile.DocumentItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Allocation: item.StockAllocation,
		})
	}
	return out
}

func invoiceItemsToDocumentItems(items []models.InvoiceItem) []reconcile.DocumentItem {
	out := make([]reconcile.DocumentItem, 0, len(items))
	for _, item := range items {
		out = append(out, reconcile.DocumentItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			Allocation: item.StockAllocation,
		})
	}
	return out
}

// applyReportToPlans folds a reconciliation report into the per-product bin
// breakdown a document carries, so a later restore draws the exact bins the
// consumption used. Outward entries (negative quantity) grow a bin's
// allocated amount, inward entries shrink it; emptied lines are dropped.
// When the report leaves the document holding no consumed stock the plans
// are cleared entirely.
func applyReportToPlans(old map[uuid.UUID]*models.AllocationPlan, report *reconcile.Report) map[uuid.UUID]*models.AllocationPlan {
	if report == nil || !report.StockConsumed {
		return nil
	}
	plans := make(map[uuid.UUID]*models.AllocationPlan, len(old)+len(report.Products))
	for productID, plan := range old {
		if plan == nil {
			continue
		}
		copied := models.AllocationPlan{
			Lines:      make([]models.AllocationLine, len(plan.Lines)),
			CanFulfill: true,
		}
		copy(copied.Lines, plan.Lines)
		plans[productID] = &copied
	}
	for _, product := range report.Products {
		plan := plans[product.ProductID]
		if plan == nil {
			plan = &models.AllocationPlan{CanFulfill: true}
			plans[product.ProductID] = plan
		}
		for _, entry := range product.Entries {
			applyEntryToPlan(plan, entry)
		}
		if len(plan.Lines) == 0 {
			delete(plans, product.ProductID)
		}
	}
	return plans
}

// publishStockReport emits a stock.adjusted event per ledger entry and low
// or out of stock alerts for the bins the reconciliation left depleted.
// Publishing is best-effort: the reconciliation already committed.
func publishStockReport(ctx context.Context, publisher *events.StockEventPublisher, tenantID, userID string, report *reconcile.Report) {
	if publisher == nil || report == nil {
		return
	}
	for _, product := range report.Products {
		for _, entry := range product.Entries {
			_ = publisher.PublishStockAdjusted(ctx, tenantID, entry.ProductID.String(), entry.Location,
				entry.PreviousQuantity, entry.ResultingQuantity, entry.Reason, entry.ReferenceID, userID)
		}
		for _, record := range product.Records {
			switch {
			case record.QuantityOnHand == 0:
				_ = publisher.PublishOutOfStockAlert(ctx, tenantID, record.ProductID.String(), record.Location)
			case record.ReorderPoint > 0 && record.QuantityAvailable <= record.ReorderPoint:
				_ = publisher.PublishLowStockAlert(ctx, tenantID, record.ProductID.String(), record.Location,
					record.QuantityAvailable, record.ReorderPoint)
			}
		}
	}
}

func applyEntryToPlan(plan *models.AllocationPlan, entry models.StockLedgerEntry) {
	delta := -entry.Quantity // outward entries increase allocation
	for i := range plan.Lines {
		line := &plan.Lines[i]
		if line.Location == entry.Location && line.Room == entry.Room && line.Rack == entry.Rack {
			line.AllocatedQuantity += delta
			line.AvailableQuantity = entry.ResultingQuantity
			if line.AllocatedQuantity <= 0 {
				plan.Lines = append(plan.Lines[:i], plan.Lines[i+1:]...)
			}
			return
		}
	}
	if delta > 0 {
		plan.Lines = append(plan.Lines, models.AllocationLine{
			Location:          entry.Location,
			Room:              entry.Room,
			Rack:              entry.Rack,
			AllocatedQuantity: delta,
			AvailableQuantity: entry.ResultingQuantity,
		})
	}
}
