package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"stock-ledger-service/internal/models"
)

// DefaultLocation is where fallback-mode restorations land when a product
// has no stock record at all.
const DefaultLocation = "MAIN"

// binAllocation is one planned mutation against a concrete stock record.
// Quantity is a magnitude; direction comes from the transaction type.
type binAllocation struct {
	Record   *models.StockRecord
	Quantity int
}

// Resolver translates a requested quantity change for one product into
// concrete per-bin stock mutations. With an allocation plan it honours the
// caller's bin choice after re-verifying it against live records; without
// one it sweeps the product's records in creation order.
type Resolver struct {
	store StockStore
}

// NewResolver returns a resolver bound to a store.
func NewResolver(store StockStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveOutward plans the consumption of quantity units of a product.
// All-or-nothing per product: any failing line aborts the whole product's
// allocation without planning partial mutations.
func (r *Resolver) ResolveOutward(ctx context.Context, tenantID string, productID uuid.UUID, quantity int, plan *models.AllocationPlan) ([]binAllocation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("outward quantity must be positive, got %d", quantity)
	}

	if plan != nil && len(plan.Lines) > 0 {
		return r.resolvePlanned(ctx, tenantID, productID, quantity, plan, true)
	}
	return r.resolveFallbackOutward(ctx, tenantID, productID, quantity)
}

// ResolveInward plans the restoration of quantity units of a product. With a
// plan the restored units return to the bins consumption came from; the
// fallback restores into the product's first record in creation order,
// creating one at the default location when the product has none.
func (r *Resolver) ResolveInward(ctx context.Context, tenantID string, productID uuid.UUID, quantity int, plan *models.AllocationPlan) ([]binAllocation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("inward quantity must be positive, got %d", quantity)
	}

	if plan != nil && len(plan.Lines) > 0 {
		return r.resolvePlanned(ctx, tenantID, productID, quantity, plan, false)
	}

	records, err := r.store.ListByProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		record, err := r.store.EnsureRecord(ctx, tenantID, productID, DefaultLocation, "", "")
		if err != nil {
			return nil, err
		}
		return []binAllocation{{Record: record, Quantity: quantity}}, nil
	}
	return []binAllocation{{Record: &records[0], Quantity: quantity}}, nil
}

// resolvePlanned walks the plan lines in order, drawing (or returning) up to
// each line's allocated quantity until the requested quantity is covered.
// The plan's availability snapshot is never trusted: every line is
// re-resolved and, for consumption, re-verified against the live record.
func (r *Resolver) resolvePlanned(ctx context.Context, tenantID string, productID uuid.UUID, quantity int, plan *models.AllocationPlan, outward bool) ([]binAllocation, error) {
	if outward && plan.TotalAllocated() < quantity {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Available: plan.TotalAllocated(),
			Requested: quantity,
		}
	}

	remaining := quantity
	allocations := make([]binAllocation, 0, len(plan.Lines))

	for _, line := range plan.Lines {
		if remaining == 0 {
			break
		}
		take := line.AllocatedQuantity
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}

		record, err := r.store.FindByBin(ctx, tenantID, productID, line.Location, line.Room, line.Rack)
		if err != nil {
			return nil, err
		}

		if outward && record.QuantityAvailable < take {
			return nil, &InsufficientStockError{
				ProductID: productID,
				Location:  line.Location,
				Room:      line.Room,
				Rack:      line.Rack,
				Available: record.QuantityAvailable,
				Requested: take,
			}
		}

		allocations = append(allocations, binAllocation{Record: record, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Available: quantity - remaining,
			Requested: quantity,
		}
	}
	return allocations, nil
}

// resolveFallbackOutward sweeps the product's records in creation order,
// consuming available quantity from each until the request is covered.
func (r *Resolver) resolveFallbackOutward(ctx context.Context, tenantID string, productID uuid.UUID, quantity int) ([]binAllocation, error) {
	records, err := r.store.ListByProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	remaining := quantity
	allocations := make([]binAllocation, 0, len(records))
	for i := range records {
		if remaining == 0 {
			break
		}
		record := &records[i]
		if record.QuantityAvailable <= 0 {
			continue
		}
		take := record.QuantityAvailable
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, binAllocation{Record: record, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Available: quantity - remaining,
			Requested: quantity,
		}
	}
	return allocations, nil
}
