package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stock-ledger-service/internal/events"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
	"stock-ledger-service/internal/repository"
)

// DuplicateBinError is returned when an opening stock import targets a bin
// that already has a record.
type DuplicateBinError struct {
	ProductID uuid.UUID
	Location  string
	Room      string
	Rack      string
}

func (e *DuplicateBinError) Error() string {
	return fmt.Sprintf("stock record already exists for product %s at %s/%s/%s", e.ProductID, e.Location, e.Room, e.Rack)
}

// OpeningStockRow is one validated row of an opening stock import.
type OpeningStockRow struct {
	ProductID    uuid.UUID
	Location     string
	Room         string
	Rack         string
	Quantity     int
	ReorderPoint int
}

// OpeningStockOutcome reports what an opening stock import did per row.
type OpeningStockOutcome struct {
	Created []models.StockRecord
	Skipped int
}

// StockService exposes stock level queries, the ledger, and opening stock
// imports.
type StockService interface {
	ListStock(ctx context.Context, tenantID string, productID *uuid.UUID, location *string, page, limit int) ([]models.StockRecord, int64, error)
	GetStockLevel(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error)
	GetAvailableQuantity(ctx context.Context, tenantID string, productID uuid.UUID) (int, error)
	GetLowStock(ctx context.Context, tenantID string, location *string) ([]models.StockRecord, error)
	GetLedgerByReference(ctx context.Context, tenantID, referenceID string) ([]models.StockLedgerEntry, error)
	ListLedger(ctx context.Context, tenantID string, productID *uuid.UUID, page, limit int) ([]models.StockLedgerEntry, int64, error)
	ImportOpeningStock(ctx context.Context, tenantID, userID string, rows []OpeningStockRow, skipDuplicates bool) (*OpeningStockOutcome, error)
}

type stockService struct {
	stock     *repository.StockRepository
	publisher *events.StockEventPublisher
	logger    *logrus.Entry
}

func NewStockService(stock *repository.StockRepository, publisher *events.StockEventPublisher, logger *logrus.Logger) StockService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &stockService{
		stock:     stock,
		publisher: publisher,
		logger:    logger.WithField("component", "stock-service"),
	}
}

func (s *stockService) ListStock(ctx context.Context, tenantID string, productID *uuid.UUID, location *string, page, limit int) ([]models.StockRecord, int64, error) {
	return s.stock.ListStockRecords(ctx, tenantID, productID, location, page, limit)
}

func (s *stockService) GetStockLevel(ctx context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error) {
	return s.stock.FindByBin(ctx, tenantID, productID, location, room, rack)
}

// GetAvailableQuantity aggregates availableQuantity across all of a
// product's bins. A product with no records reports zero, not an error.
func (s *stockService) GetAvailableQuantity(ctx context.Context, tenantID string, productID uuid.UUID) (int, error) {
	return s.stock.AggregateAvailable(ctx, tenantID, productID)
}

func (s *stockService) GetLowStock(ctx context.Context, tenantID string, location *string) ([]models.StockRecord, error) {
	return s.stock.GetLowStockRecords(ctx, tenantID, location)
}

func (s *stockService) GetLedgerByReference(ctx context.Context, tenantID, referenceID string) ([]models.StockLedgerEntry, error) {
	return s.stock.FindLedgerByReference(ctx, tenantID, referenceID)
}

func (s *stockService) ListLedger(ctx context.Context, tenantID string, productID *uuid.UUID, page, limit int) ([]models.StockLedgerEntry, int64, error) {
	return s.stock.ListLedgerEntries(ctx, tenantID, productID, page, limit)
}

// ImportOpeningStock creates stock records from an import file, each paired
// with an inward ledger entry so even opening balances are traceable. Rows
// whose bin already exists are skipped when skipDuplicates is set and fail
// the whole import otherwise.
func (s *stockService) ImportOpeningStock(ctx context.Context, tenantID, userID string, rows []OpeningStockRow, skipDuplicates bool) (*OpeningStockOutcome, error) {
	outcome := &OpeningStockOutcome{}

	err := s.stock.Transaction(func(txRepo *repository.StockRepository) error {
		for _, row := range rows {
			existing, err := txRepo.FindByBin(ctx, tenantID, row.ProductID, row.Location, row.Room, row.Rack)
			if err != nil {
				var notFound *reconcile.LocationNotFoundError
				if !errors.As(err, &notFound) {
					return err
				}
			} else if existing != nil {
				if skipDuplicates {
					outcome.Skipped++
					continue
				}
				return &DuplicateBinError{
					ProductID: row.ProductID,
					Location:  row.Location,
					Room:      row.Room,
					Rack:      row.Rack,
				}
			}

			record := models.StockRecord{
				TenantID:       tenantID,
				ProductID:      row.ProductID,
				Location:       row.Location,
				Room:           row.Room,
				Rack:           row.Rack,
				QuantityOnHand: row.Quantity,
				ReorderPoint:   row.ReorderPoint,
			}
			if err := txRepo.CreateStockRecord(ctx, &record); err != nil {
				return err
			}

			if row.Quantity > 0 {
				entry := models.StockLedgerEntry{
					TenantID:          tenantID,
					ProductID:         row.ProductID,
					Location:          row.Location,
					Room:              row.Room,
					Rack:              row.Rack,
					TransactionType:   models.TransactionInward,
					Quantity:          row.Quantity,
					PreviousQuantity:  0,
					ResultingQuantity: row.Quantity,
					Reason:            "Opening stock import",
					ReferenceType:     "OPENING_STOCK",
					PerformedBy:       userID,
					TransactionDate:   time.Now().UTC(),
				}
				if err := txRepo.AppendLedger(ctx, &entry); err != nil {
					return err
				}
			}

			outcome.Created = append(outcome.Created, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId": tenantID,
		"created":  len(outcome.Created),
		"skipped":  outcome.Skipped,
	}).Info("Opening stock imported")
	return outcome, nil
}
