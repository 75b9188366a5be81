package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DocumentStatus represents the lifecycle status of a stock-consuming document
type DocumentStatus string

const (
	DocumentStatusDraft     DocumentStatus = "DRAFT"
	DocumentStatusSent      DocumentStatus = "SENT"
	DocumentStatusDelivered DocumentStatus = "DELIVERED"
	DocumentStatusCancelled DocumentStatus = "CANCELLED"
)

// Reference type names used in ledger entries
const (
	ReferenceTypeChallan = "DELIVERY_CHALLAN"
	ReferenceTypeInvoice = "SALES_INVOICE"
)

// DeliveryChallan is a stock-consuming document. Stock is consumed at
// creation time regardless of the initial status (consume-on-create policy);
// StockConsumed records whether the document currently holds consumed stock
// so that repeated status transitions never consume the same units twice.
type DeliveryChallan struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID      string         `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ChallanNumber string         `json:"challanNumber" gorm:"type:varchar(50);not null;uniqueIndex"`
	Status        DocumentStatus `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT'"`
	StockConsumed bool           `json:"stockConsumed" gorm:"not null;default:false"`

	CustomerID   *uuid.UUID `json:"customerId,omitempty" gorm:"type:uuid;index"`
	CustomerName string     `json:"customerName" gorm:"type:varchar(255)"`
	DeliveryDate *time.Time `json:"deliveryDate,omitempty"`
	VehicleNo    *string    `json:"vehicleNo,omitempty" gorm:"type:varchar(50)"`
	Notes        *string    `json:"notes,omitempty" gorm:"type:text"`

	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy *string         `json:"createdBy,omitempty"`
	UpdatedBy *string         `json:"updatedBy,omitempty"`

	Items []ChallanItem `json:"items,omitempty" gorm:"foreignKey:ChallanID"`
}

// ChallanItem is one line of a delivery challan. StockAllocation is the
// caller's advisory bin breakdown; it is kept on the item so later
// restorations draw the same bins.
type ChallanItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	ChallanID uuid.UUID `json:"challanId" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`

	Description string          `json:"description" gorm:"type:varchar(255)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:decimal(12,2);not null;default:0"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null;default:0"`

	StockAllocation *AllocationPlan `json:"stockAllocation,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SalesInvoice is the second stock-consuming document kind. It shares the
// challan's lifecycle and is reconciled through the same engine.
type SalesInvoice struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID      string         `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	InvoiceNumber string         `json:"invoiceNumber" gorm:"type:varchar(50);not null;uniqueIndex"`
	Status        DocumentStatus `json:"status" gorm:"type:varchar(20);not null;default:'DRAFT'"`
	StockConsumed bool           `json:"stockConsumed" gorm:"not null;default:false"`

	CustomerID   *uuid.UUID `json:"customerId,omitempty" gorm:"type:uuid;index"`
	CustomerName string     `json:"customerName" gorm:"type:varchar(255)"`
	InvoiceDate  time.Time  `json:"invoiceDate"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Notes        *string    `json:"notes,omitempty" gorm:"type:text"`

	Subtotal decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null;default:0"`
	Tax      decimal.Decimal `json:"tax" gorm:"type:decimal(12,2);not null;default:0"`
	Total    decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null;default:0"`

	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy *string         `json:"createdBy,omitempty"`
	UpdatedBy *string         `json:"updatedBy,omitempty"`

	Items []InvoiceItem `json:"items,omitempty" gorm:"foreignKey:InvoiceID"`
}

// InvoiceItem is one line of a sales invoice.
type InvoiceItem struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	InvoiceID uuid.UUID `json:"invoiceId" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`

	Description string          `json:"description" gorm:"type:varchar(255)"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	Rate        decimal.Decimal `json:"rate" gorm:"type:decimal(12,2);not null;default:0"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null;default:0"`

	StockAllocation *AllocationPlan `json:"stockAllocation,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (DeliveryChallan) TableName() string {
	return "delivery_challans"
}

func (ChallanItem) TableName() string {
	return "challan_items"
}

func (SalesInvoice) TableName() string {
	return "sales_invoices"
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// Request/Response models

type DocumentItemRequest struct {
	ProductID       uuid.UUID       `json:"productId" binding:"required"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity" binding:"required,gt=0"`
	Rate            decimal.Decimal `json:"rate"`
	StockAllocation *AllocationPlan `json:"stockAllocation,omitempty"`
}

type CreateChallanRequest struct {
	CustomerID   *uuid.UUID            `json:"customerId,omitempty"`
	CustomerName string                `json:"customerName" binding:"required"`
	Status       *DocumentStatus       `json:"status,omitempty"`
	DeliveryDate *time.Time            `json:"deliveryDate,omitempty"`
	VehicleNo    *string               `json:"vehicleNo,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Items        []DocumentItemRequest `json:"items" binding:"required,min=1"`
}

type UpdateChallanRequest struct {
	CustomerName *string               `json:"customerName,omitempty"`
	DeliveryDate *time.Time            `json:"deliveryDate,omitempty"`
	VehicleNo    *string               `json:"vehicleNo,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Items        []DocumentItemRequest `json:"items" binding:"required,min=1"`
}

type UpdateDocumentStatusRequest struct {
	Status DocumentStatus `json:"status" binding:"required"`
}

type CreateInvoiceRequest struct {
	CustomerID   *uuid.UUID            `json:"customerId,omitempty"`
	CustomerName string                `json:"customerName" binding:"required"`
	Status       *DocumentStatus       `json:"status,omitempty"`
	DueDate      *time.Time            `json:"dueDate,omitempty"`
	Tax          decimal.Decimal       `json:"tax"`
	Notes        *string               `json:"notes,omitempty"`
	Items        []DocumentItemRequest `json:"items" binding:"required,min=1"`
}

type UpdateInvoiceRequest struct {
	CustomerName *string               `json:"customerName,omitempty"`
	DueDate      *time.Time            `json:"dueDate,omitempty"`
	Tax          *decimal.Decimal      `json:"tax,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Items        []DocumentItemRequest `json:"items" binding:"required,min=1"`
}

type ChallanResponse struct {
	Success bool             `json:"success"`
	Data    *DeliveryChallan `json:"data,omitempty"`
	Message *string          `json:"message,omitempty"`
}

type ChallanListResponse struct {
	Success    bool              `json:"success"`
	Data       []DeliveryChallan `json:"data"`
	Pagination *PaginationMeta   `json:"pagination,omitempty"`
}

type InvoiceResponse struct {
	Success bool          `json:"success"`
	Data    *SalesInvoice `json:"data,omitempty"`
	Message *string       `json:"message,omitempty"`
}

type InvoiceListResponse struct {
	Success    bool            `json:"success"`
	Data       []SalesInvoice  `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}
