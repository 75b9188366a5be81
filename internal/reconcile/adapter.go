package reconcile

import (
	"context"

	"github.com/google/uuid"

	"stock-ledger-service/internal/models"
)

// DocumentItem is the only view of a document line the engine needs.
type DocumentItem struct {
	ProductID  uuid.UUID
	Quantity   int
	Allocation *models.AllocationPlan
}

// StockDocument is the read-only adapter any stock-consuming document kind
// implements. The engine never writes the document; callers persist status
// and item changes themselves, after the engine succeeds.
type StockDocument interface {
	Items() []DocumentItem
	Status() models.DocumentStatus
	// ReferenceID is the document number used as the ledger referenceId.
	ReferenceID() string
	// ReferenceType names the document kind in ledger entries.
	ReferenceType() string
	// ConsumedStock reports whether the document currently holds consumed
	// stock. Consumption is applied exactly once per unit until reverted.
	ConsumedStock() bool
}

// StockStore is the persistence the engine and resolver need. In production
// it is a transaction-scoped repository; tests substitute an in-memory
// implementation.
//
// Adjust must be atomic at the storage layer (a single conditional update),
// returning ErrConcurrentModification when the guard fails even though a
// prior read said it would succeed.
type StockStore interface {
	// FindByBin resolves one (product, location, room, rack) record.
	// Returns *LocationNotFoundError when the bin does not exist.
	FindByBin(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error)
	// ListByProduct returns all records for a product in creation order.
	ListByProduct(ctx context.Context, tenantID string, productID uuid.UUID) ([]models.StockRecord, error)
	// EnsureRecord returns the record for a bin, creating a zero-quantity
	// record when the product has never been stocked there.
	EnsureRecord(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error)
	// Adjust atomically applies quantity += delta, recomputes the available
	// quantity and refreshes lastUpdated. Outward deltas that would go
	// negative fail with ErrConcurrentModification.
	Adjust(ctx context.Context, tenantID string, recordID uuid.UUID, delta int) (*models.StockRecord, error)
	// AppendLedger writes one immutable ledger entry, rejecting unbalanced
	// entries with *LedgerValidationError.
	AppendLedger(ctx context.Context, entry *models.StockLedgerEntry) error
}
