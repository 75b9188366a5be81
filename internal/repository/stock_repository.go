package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
)

// Cache TTL constants
const (
	StockRecordCacheTTL = 5 * time.Minute // single record lookups - invalidated on every adjust
	StockListCacheTTL   = 2 * time.Minute // list cache - shorter due to frequent changes

	cacheKeyPrefix = "stockledger:"
)

// StockRepository persists stock records and the append-only ledger. It
// implements reconcile.StockStore; WithTx returns a transaction-scoped copy
// so a whole document reconciliation commits or rolls back together.
type StockRepository struct {
	db    *gorm.DB
	redis *redis.Client

	// fresh disables cache reads. Transaction-scoped copies validate
	// quantities that are about to be adjusted, so they must see the row
	// the transaction sees, never a cached snapshot.
	fresh bool
}

var _ reconcile.StockStore = (*StockRepository)(nil)

func NewStockRepository(db *gorm.DB, redisClient *redis.Client) *StockRepository {
	return &StockRepository{db: db, redis: redisClient}
}

// WithTx returns a copy of the repository bound to the given transaction.
// The copy reads past the cache but shares the cache client so
// invalidations still happen.
func (r *StockRepository) WithTx(tx *gorm.DB) *StockRepository {
	return &StockRepository{db: tx, redis: r.redis, fresh: true}
}

// Transaction runs fn with a transaction-scoped repository.
func (r *StockRepository) Transaction(fn func(txRepo *StockRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func stockRecordCacheKey(tenantID string, productID uuid.UUID, location, room, rack string) string {
	return fmt.Sprintf("%srecord:%s:%s:%s:%s:%s", cacheKeyPrefix, tenantID, productID, location, room, rack)
}

// invalidateStockCaches drops record and list caches touched by a mutation.
func (r *StockRepository) invalidateStockCaches(ctx context.Context, record *models.StockRecord) {
	if r.redis == nil || record == nil {
		return
	}
	_ = r.redis.Del(ctx, stockRecordCacheKey(record.TenantID, record.ProductID, record.Location, record.Room, record.Rack)).Err()

	iter := r.redis.Scan(ctx, 0, fmt.Sprintf("%slist:%s:*", cacheKeyPrefix, record.TenantID), 100).Iterator()
	for iter.Next(ctx) {
		_ = r.redis.Del(ctx, iter.Val()).Err()
	}
}

// RedisHealth returns the health status of the Redis connection.
func (r *StockRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

// ========== reconcile.StockStore ==========

// FindByBin resolves one (product, location, room, rack) record, with
// caching on the read path.
func (r *StockRepository) FindByBin(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error) {
	cacheKey := stockRecordCacheKey(tenantID, productID, location, room, rack)
	if r.redis != nil && !r.fresh {
		if val, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			var record models.StockRecord
			if err := json.Unmarshal([]byte(val), &record); err == nil {
				return &record, nil
			}
		}
	}

	var record models.StockRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND location = ? AND room = ? AND rack = ?",
			tenantID, productID, location, room, rack).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &reconcile.LocationNotFoundError{
			ProductID: productID,
			Location:  location,
			Room:      room,
			Rack:      rack,
		}
	}
	if err != nil {
		return nil, err
	}

	if r.redis != nil && !r.fresh {
		if data, err := json.Marshal(record); err == nil {
			r.redis.Set(ctx, cacheKey, data, StockRecordCacheTTL)
		}
	}
	return &record, nil
}

// ListByProduct returns all records for a product in creation order, which
// is what makes fallback allocation deterministic.
func (r *StockRepository) ListByProduct(ctx context.Context, tenantID string, productID uuid.UUID) ([]models.StockRecord, error) {
	var records []models.StockRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

// EnsureRecord returns the record for a bin, creating a zero-quantity row
// when the product has never been stocked there.
func (r *StockRepository) EnsureRecord(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error) {
	var record models.StockRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND location = ? AND room = ? AND rack = ?",
			tenantID, productID, location, room, rack).
		First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	record = models.StockRecord{
		TenantID:    tenantID,
		ProductID:   productID,
		Location:    location,
		Room:        room,
		Rack:        rack,
		LastUpdated: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Adjust applies quantity_on_hand += delta as a single conditional UPDATE.
// The quantity_on_hand + delta >= 0 guard in the WHERE clause is what makes
// the adjustment safe under concurrency: when another request consumed the
// stock first, no row matches and the caller gets ErrConcurrentModification
// instead of a negative quantity. availableQuantity is recomputed in the
// same statement, never accepted from outside.
func (r *StockRepository) Adjust(ctx context.Context, tenantID string, recordID uuid.UUID, delta int) (*models.StockRecord, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.StockRecord{}).
		Where("tenant_id = ? AND id = ? AND quantity_on_hand + ? >= 0", tenantID, recordID, delta).
		Updates(map[string]interface{}{
			"quantity_on_hand":   gorm.Expr("quantity_on_hand + ?", delta),
			"quantity_available": gorm.Expr("quantity_on_hand + ? - quantity_reserved", delta),
			"last_updated":       now,
			"updated_at":         now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var record models.StockRecord
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND id = ?", tenantID, recordID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stock record %s not found", recordID)
		}
		if err != nil {
			return nil, err
		}
		return nil, reconcile.ErrConcurrentModification
	}

	var record models.StockRecord
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, recordID).
		First(&record).Error; err != nil {
		return nil, err
	}

	r.invalidateStockCaches(ctx, &record)
	return &record, nil
}

// AppendLedger writes one immutable ledger entry. There is no update or
// delete counterpart anywhere in the repository.
func (r *StockRepository) AppendLedger(ctx context.Context, entry *models.StockLedgerEntry) error {
	if !entry.Balanced() {
		return &reconcile.LedgerValidationError{
			Previous:  entry.PreviousQuantity,
			Quantity:  entry.Quantity,
			Resulting: entry.ResultingQuantity,
		}
	}
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = time.Now().UTC()
	}
	entry.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(entry).Error
}

// ========== Query operations ==========

// AggregateAvailable sums availableQuantity across all of a product's bins.
func (r *StockRepository) AggregateAvailable(ctx context.Context, tenantID string, productID uuid.UUID) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).Model(&models.StockRecord{}).
		Select("SUM(quantity_available)").
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ListStockRecords retrieves stock records with optional filters and
// pagination, caching full pages per tenant.
func (r *StockRepository) ListStockRecords(ctx context.Context, tenantID string, productID *uuid.UUID, location *string, page, limit int) ([]models.StockRecord, int64, error) {
	cacheKey := ""
	if r.redis != nil && productID == nil && location == nil {
		cacheKey = fmt.Sprintf("%slist:%s:%d:%d", cacheKeyPrefix, tenantID, page, limit)
		if val, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached struct {
				Records []models.StockRecord `json:"records"`
				Total   int64                `json:"total"`
			}
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached.Records, cached.Total, nil
			}
		}
	}

	var records []models.StockRecord
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	}
	if location != nil {
		query = query.Where("location = ?", *location)
	}

	if err := query.Model(&models.StockRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("created_at ASC, id ASC").Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	if cacheKey != "" {
		cached := struct {
			Records []models.StockRecord `json:"records"`
			Total   int64                `json:"total"`
		}{Records: records, Total: total}
		if data, err := json.Marshal(cached); err == nil {
			r.redis.Set(ctx, cacheKey, data, StockListCacheTTL)
		}
	}
	return records, total, nil
}

// GetLowStockRecords returns records at or below their reorder point.
func (r *StockRepository) GetLowStockRecords(ctx context.Context, tenantID string, location *string) ([]models.StockRecord, error) {
	var records []models.StockRecord
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND quantity_available <= reorder_point AND reorder_point > 0", tenantID)
	if location != nil {
		query = query.Where("location = ?", *location)
	}
	err := query.Order("quantity_available ASC").Find(&records).Error
	return records, err
}

// FindLedgerByReference returns all ledger entries for a document number in
// insertion order.
func (r *StockRepository) FindLedgerByReference(ctx context.Context, tenantID, referenceID string) ([]models.StockLedgerEntry, error) {
	var entries []models.StockLedgerEntry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reference_id = ?", tenantID, referenceID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

// ListLedgerEntries returns ledger entries for a tenant, newest first, with
// optional product filter and pagination.
func (r *StockRepository) ListLedgerEntries(ctx context.Context, tenantID string, productID *uuid.UUID, page, limit int) ([]models.StockLedgerEntry, int64, error) {
	var entries []models.StockLedgerEntry
	var total int64
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if productID != nil {
		query = query.Where("product_id = ?", *productID)
	}
	if err := query.Model(&models.StockLedgerEntry{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}
	err := query.Order("sequence DESC").Find(&entries).Error
	return entries, total, err
}

// CreateStockRecord creates an opening stock record, used by imports.
func (r *StockRepository) CreateStockRecord(ctx context.Context, record *models.StockRecord) error {
	now := time.Now()
	record.QuantityAvailable = record.QuantityOnHand - record.QuantityReserved
	record.LastUpdated = now
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}
	r.invalidateStockCaches(ctx, record)
	return nil
}
