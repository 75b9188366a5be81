// Package reconcile keeps stock records and the audit ledger consistent
// with the lifecycle of stock-consuming documents (delivery challans, sales
// invoices). It owns the allocation resolver and the reconciliation engine;
// persistence is reached through the StockStore interface so the whole of a
// document's transition can run inside one caller-owned transaction.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stock-ledger-service/internal/models"
)

// InsufficientStockError is returned when an outward adjustment would drive
// a stock record (or the product aggregate) negative. Location is empty when
// the shortfall was detected against the aggregate in fallback mode.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Location  string
	Room      string
	Rack      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
			e.ProductID, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s at %s: available %d, requested %d",
		e.ProductID, binName(e.Location, e.Room, e.Rack), e.Available, e.Requested)
}

// LocationNotFoundError is returned when an allocation plan names a bin that
// does not resolve to a live stock record.
type LocationNotFoundError struct {
	ProductID uuid.UUID
	Location  string
	Room      string
	Rack      string
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("no stock record for product %s at %s",
		e.ProductID, binName(e.Location, e.Room, e.Rack))
}

// InvalidTransitionError is returned for a status change the transition
// table does not allow, or a delete of a non-draft document.
type InvalidTransitionError struct {
	From models.DocumentStatus
	To   models.DocumentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid document transition from %s to %s", e.From, e.To)
}

// ErrConcurrentModification is returned by a store when an atomic adjust
// loses its precondition at commit time (another request won the race).
// The engine retries the whole validate-then-commit a bounded number of
// times before surfacing it.
var ErrConcurrentModification = errors.New("stock record modified concurrently")

// LedgerValidationError is returned when a ledger entry fails the
// resulting = previous + quantity invariant.
type LedgerValidationError struct {
	Previous  int
	Quantity  int
	Resulting int
}

func (e *LedgerValidationError) Error() string {
	return fmt.Sprintf("unbalanced ledger entry: %d + %d != %d",
		e.Previous, e.Quantity, e.Resulting)
}

func binName(location, room, rack string) string {
	name := location
	if room != "" {
		name += "/" + room
	}
	if rack != "" {
		name += "/" + rack
	}
	return name
}
