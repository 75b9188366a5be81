package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSON type for PostgreSQL JSONB
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// TransactionType represents the direction of a stock movement
type TransactionType string

const (
	TransactionInward  TransactionType = "INWARD"  // stock returning to inventory
	TransactionOutward TransactionType = "OUTWARD" // stock leaving inventory
)

// StockRecord holds the current on-hand quantity for one
// (product, location, room, rack) bin.
//
// AvailableQuantity is derived from QuantityOnHand - QuantityReserved and is
// recomputed inside the same UPDATE that changes either input; it is never
// accepted from a caller. Records are soft-zeroed rather than deleted while
// ledger entries reference them.
type StockRecord struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;uniqueIndex:idx_stock_records_bin"`

	Location string `json:"location" gorm:"type:varchar(100);not null;uniqueIndex:idx_stock_records_bin"`
	Room     string `json:"room" gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_stock_records_bin"`
	Rack     string `json:"rack" gorm:"type:varchar(100);not null;default:'';uniqueIndex:idx_stock_records_bin"`

	QuantityOnHand    int `json:"quantityOnHand" gorm:"not null;default:0;check:quantity_on_hand >= 0"`
	QuantityReserved  int `json:"quantityReserved" gorm:"not null;default:0;check:quantity_reserved >= 0"`
	QuantityAvailable int `json:"quantityAvailable" gorm:"not null;default:0"`

	ReorderPoint int `json:"reorderPoint" gorm:"default:0"`

	LastUpdated time.Time `json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (StockRecord) TableName() string {
	return "stock_records"
}

// StockLedgerEntry is one applied stock mutation. Entries are append-only:
// no update or delete path exists anywhere in the service.
//
// Quantity is the signed applied delta (negative for outward, positive for
// inward) and ResultingQuantity must equal PreviousQuantity + Quantity.
type StockLedgerEntry struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`

	// Sequence preserves insertion order for audit display.
	Sequence int64 `json:"sequence" gorm:"autoIncrement;uniqueIndex"`

	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`
	Location  string    `json:"location" gorm:"type:varchar(100);not null"`
	Room      string    `json:"room,omitempty" gorm:"type:varchar(100)"`
	Rack      string    `json:"rack,omitempty" gorm:"type:varchar(100)"`

	TransactionType   TransactionType `json:"transactionType" gorm:"type:varchar(20);not null"`
	Quantity          int             `json:"quantity" gorm:"not null"`
	PreviousQuantity  int             `json:"previousQuantity" gorm:"not null"`
	ResultingQuantity int             `json:"resultingQuantity" gorm:"not null"`

	Reason        string `json:"reason" gorm:"type:text;not null"`
	ReferenceID   string `json:"referenceId" gorm:"type:varchar(100);not null;index"`
	ReferenceType string `json:"referenceType" gorm:"type:varchar(50);not null"`
	PerformedBy   string `json:"performedBy" gorm:"type:varchar(255)"`

	TransactionDate time.Time `json:"transactionDate" gorm:"not null"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (StockLedgerEntry) TableName() string {
	return "stock_ledger_entries"
}

// Balanced reports whether the entry satisfies the ledger invariant.
func (e *StockLedgerEntry) Balanced() bool {
	return e.ResultingQuantity == e.PreviousQuantity+e.Quantity
}

// AllocationLine is one bin of a caller-supplied allocation plan.
// AvailableQuantity is the caller's snapshot at plan time; the resolver
// re-checks it against live records before trusting it.
type AllocationLine struct {
	Location          string `json:"location"`
	Room              string `json:"room,omitempty"`
	Rack              string `json:"rack,omitempty"`
	AllocatedQuantity int    `json:"allocatedQuantity"`
	AvailableQuantity int    `json:"availableQuantity"`
}

// AllocationPlan is the advisory per-item breakdown of which bins to draw
// from. It is persisted on the document item so restorations mirror the
// bins consumption came from.
type AllocationPlan struct {
	Lines      []AllocationLine `json:"lines"`
	CanFulfill bool             `json:"canFulfill"`
}

func (p AllocationPlan) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *AllocationPlan) Scan(value interface{}) error {
	if value == nil {
		*p = AllocationPlan{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// TotalAllocated sums the plan's line quantities.
func (p *AllocationPlan) TotalAllocated() int {
	total := 0
	for _, line := range p.Lines {
		total += line.AllocatedQuantity
	}
	return total
}

// Request/Response models

type StockRecordResponse struct {
	Success bool         `json:"success"`
	Data    *StockRecord `json:"data,omitempty"`
	Message *string      `json:"message,omitempty"`
}

type StockRecordListResponse struct {
	Success    bool            `json:"success"`
	Data       []StockRecord   `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type LedgerListResponse struct {
	Success bool               `json:"success"`
	Data    []StockLedgerEntry `json:"data"`
}

type AggregateAvailableResponse struct {
	Success   bool      `json:"success"`
	ProductID uuid.UUID `json:"productId"`
	Available int       `json:"available"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}
