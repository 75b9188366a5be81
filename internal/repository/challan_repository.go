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

var ErrChallanNotFound = errors.New("delivery challan not found")

// ChallanRepository handles delivery challan persistence.
type ChallanRepository struct {
	db *gorm.DB
}

func NewChallanRepository(db *gorm.DB) *ChallanRepository {
	return &ChallanRepository{db: db}
}

func (r *ChallanRepository) WithTx(tx *gorm.DB) *ChallanRepository {
	return &ChallanRepository{db: tx}
}

// WithTransaction executes fn within a database transaction.
func (r *ChallanRepository) WithTransaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GenerateChallanNumber produces the next DC-YYYYMM-NNNNNN number for the
// tenant based on the count of challans created this month.
func (r *ChallanRepository) GenerateChallanNumber(ctx context.Context, tenantID string) (string, error) {
	prefix := fmt.Sprintf("DC-%s", time.Now().Format("200601"))
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DeliveryChallan{}).
		Unscoped().
		Where("tenant_id = ? AND challan_number LIKE ?", tenantID, prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", fmt.Errorf("failed to generate challan number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, count+1), nil
}

func (r *ChallanRepository) Create(ctx context.Context, challan *models.DeliveryChallan) error {
	return r.db.WithContext(ctx).Create(challan).Error
}

func (r *ChallanRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeliveryChallan, error) {
	var challan models.DeliveryChallan
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&challan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &challan, nil
}

// List returns challans for a tenant, newest first, with optional status
// filter and pagination.
func (r *ChallanRepository) List(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.DeliveryChallan, int64, error) {
	var challans []models.DeliveryChallan
	var total int64

	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Model(&models.DeliveryChallan{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page > 0 && limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}
	err := query.Preload("Items").Order("created_at DESC").Find(&challans).Error
	return challans, total, err
}

func (r *ChallanRepository) Update(ctx context.Context, challan *models.DeliveryChallan) error {
	return r.db.WithContext(ctx).Save(challan).Error
}

// ReplaceItems deletes the challan's existing items and inserts the new set.
func (r *ChallanRepository) ReplaceItems(ctx context.Context, challanID uuid.UUID, items []models.ChallanItem) error {
	if err := r.db.WithContext(ctx).
		Where("challan_id = ?", challanID).
		Delete(&models.ChallanItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ChallanID = challanID
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// UpdateItemAllocations persists the stock allocation recorded for each item
// at consumption time so a later restore can mirror the same bins.
func (r *ChallanRepository) UpdateItemAllocations(ctx context.Context, items []models.ChallanItem) error {
	for i := range items {
		if err := r.db.WithContext(ctx).Model(&models.ChallanItem{}).
			Where("id = ?", items[i].ID).
			Update("stock_allocation", items[i].StockAllocation).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *ChallanRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.DeliveryChallan{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrChallanNotFound
	}
	return nil
}
