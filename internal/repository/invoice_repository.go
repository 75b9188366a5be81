package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"stock-ledger-service/internal/models"
)

var ErrInvoiceNotFound = errors.New("sales invoice not found")

// InvoiceRepository handles sales invoice persistence.
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

// WithTransaction executes fn within a database transaction.
func (r *InvoiceRepository) WithTransaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GenerateInvoiceNumber produces the next INV-YYYYMM-NNNNNN number for the
// tenant based on the count of invoices created this month.
func (r *InvoiceRepository) GenerateInvoiceNumber(ctx context.Context, tenantID string) (string, error) {
	prefix := fmt.Sprintf("INV-%s", time.Now().Format("200601"))
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SalesInvoice{}).
		Unscoped().
		Where("tenant_id = ? AND invoice_number LIKE ?", tenantID, prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", fmt.Errorf("failed to generate invoice number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, count+1), nil
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.SalesInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *InvoiceRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.SalesInvoice, error) {
	var invoice models.SalesInvoice
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// List returns invoices for a tenant, newest first, with optional status
// filter and pagination.
func (r *InvoiceRepository) List(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.SalesInvoice, int64, error) {
	var invoices []models.SalesInvoice
	var total int64

	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Model(&models.SalesInvoice{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page > 0 && limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}
	err := query.Preload("Items").Order("created_at DESC").Find(&invoices).Error
	return invoices, total, err
}

func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.SalesInvoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

// ReplaceItems deletes the invoice's existing items and inserts the new set.
func (r *InvoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []models.InvoiceItem) error {
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&models.InvoiceItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpdateItemAllocations persists the stock allocation recorded for each item
// at consumption time so a later restore can mirror the same bins.
func (r *InvoiceRepository) UpdateItemAllocations(ctx context.Context, items []models.InvoiceItem) error {
	for i := range items {
		if err := r.db.WithContext(ctx).Model(&models.InvoiceItem{}).
			Where("id = ?", items[i].ID).
			Update("stock_allocation", items[i].StockAllocation).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *InvoiceRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.SalesInvoice{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
