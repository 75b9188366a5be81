package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"stock-ledger-service/internal/events"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
	"stock-ledger-service/internal/repository"
)

// ChallanService defines the business logic interface for delivery challans
type ChallanService interface {
	CreateChallan(ctx context.Context, tenantID, userID string, req *models.CreateChallanRequest) (*models.DeliveryChallan, error)
	GetChallan(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeliveryChallan, error)
	ListChallans(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.DeliveryChallan, int64, error)
	UpdateChallan(ctx context.Context, tenantID, userID string, id uuid.UUID, req *models.UpdateChallanRequest) (*models.DeliveryChallan, error)
	UpdateChallanStatus(ctx context.Context, tenantID, userID string, id uuid.UUID, to models.DocumentStatus) (*models.DeliveryChallan, error)
	DeleteChallan(ctx context.Context, tenantID, userID string, id uuid.UUID) error
}

type challanService struct {
	challans  *repository.ChallanRepository
	stock     *repository.StockRepository
	engine    *reconcile.Engine
	publisher *events.StockEventPublisher
	logger    *logrus.Entry
}

func NewChallanService(challans *repository.ChallanRepository, stock *repository.StockRepository, engine *reconcile.Engine, publisher *events.StockEventPublisher, logger *logrus.Logger) ChallanService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &challanService{
		challans:  challans,
		stock:     stock,
		engine:    engine,
		publisher: publisher,
		logger:    logger.WithField("component", "challan-service"),
	}
}

// CreateChallan creates a delivery challan and consumes stock for every line
// in the same transaction. Stock is drawn at creation time regardless of the
// initial status; a challan is only persisted if every line can be covered.
func (s *challanService) CreateChallan(ctx context.Context, tenantID, userID string, req *models.CreateChallanRequest) (*models.DeliveryChallan, error) {
	status := models.DocumentStatusDraft
	if req.Status != nil {
		if !models.IsValidDocumentStatus(*req.Status) {
			return nil, &InvalidStatusError{Status: *req.Status}
		}
		status = *req.Status
	}

	number, err := s.challans.GenerateChallanNumber(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	challan := &models.DeliveryChallan{
		TenantID:      tenantID,
		ChallanNumber: number,
		Status:        status,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		DeliveryDate:  req.DeliveryDate,
		VehicleNo:     req.VehicleNo,
		Notes:         req.Notes,
		CreatedBy:     &userID,
		Items:         buildChallanItems(tenantID, req.Items),
	}

	var report *reconcile.Report
	err = s.engine.RetryConflicts(number, func() error {
		return s.challans.WithTransaction(func(tx *gorm.DB) error {
			txChallans := s.challans.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			if err := txChallans.Create(ctx, challan); err != nil {
				return err
			}

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionCreate,
				Document:    challanDocument{challan},
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			plans := applyReportToPlans(nil, report)
			assignChallanPlans(challan.Items, plans)
			if err := txChallans.UpdateItemAllocations(ctx, challan.Items); err != nil {
				return err
			}

			challan.StockConsumed = report.StockConsumed
			return tx.Model(challan).Update("stock_consumed", challan.StockConsumed).Error
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"challanNumber": challan.ChallanNumber,
		"tenantId":      tenantID,
		"items":         len(challan.Items),
	}).Info("Delivery challan created")

	s.publishReport(ctx, tenantID, userID, report)
	return challan, nil
}

func (s *challanService) GetChallan(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeliveryChallan, error) {
	return s.challans.GetByID(ctx, tenantID, id)
}

func (s *challanService) ListChallans(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.DeliveryChallan, int64, error) {
	return s.challans.List(ctx, tenantID, status, page, limit)
}

// UpdateChallan replaces the challan's items and header fields. When the
// challan holds consumed stock the per-product quantity differences are
// applied to stock in the same transaction; unchanged quantities write
// nothing to the ledger.
func (s *challanService) UpdateChallan(ctx context.Context, tenantID, userID string, id uuid.UUID, req *models.UpdateChallanRequest) (*models.DeliveryChallan, error) {
	challan, err := s.challans.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	oldItems := challanItemsToDocumentItems(challan.Items)
	oldPlans := challanPlansByProduct(challan.Items)
	newItems := buildChallanItems(tenantID, req.Items)

	if req.CustomerName != nil {
		challan.CustomerName = *req.CustomerName
	}
	if req.DeliveryDate != nil {
		challan.DeliveryDate = req.DeliveryDate
	}
	if req.VehicleNo != nil {
		challan.VehicleNo = req.VehicleNo
	}
	if req.Notes != nil {
		challan.Notes = req.Notes
	}
	challan.UpdatedBy = &userID
	challan.Items = newItems

	var report *reconcile.Report
	err = s.engine.RetryConflicts(challan.ChallanNumber, func() error {
		return s.challans.WithTransaction(func(tx *gorm.DB) error {
			txChallans := s.challans.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionUpdate,
				Document:    challanDocument{challan},
				OldItems:    oldItems,
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			if err := txChallans.ReplaceItems(ctx, challan.ID, challan.Items); err != nil {
				return err
			}

			if challan.StockConsumed {
				plans := applyReportToPlans(oldPlans, report)
				assignChallanPlans(challan.Items, plans)
				if err := txChallans.UpdateItemAllocations(ctx, challan.Items); err != nil {
					return err
				}
			}

			return txChallans.Update(ctx, challan)
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishReport(ctx, tenantID, userID, report)
	return challan, nil
}

// UpdateChallanStatus moves the challan through its lifecycle, applying the
// stock effect of the transition. Transitions that would re-consume already
// consumed stock, or restore stock never consumed, touch nothing.
func (s *challanService) UpdateChallanStatus(ctx context.Context, tenantID, userID string, id uuid.UUID, to models.DocumentStatus) (*models.DeliveryChallan, error) {
	challan, err := s.challans.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	from := challan.Status
	oldPlans := challanPlansByProduct(challan.Items)

	var report *reconcile.Report
	err = s.engine.RetryConflicts(challan.ChallanNumber, func() error {
		return s.challans.WithTransaction(func(tx *gorm.DB) error {
			txChallans := s.challans.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionStatusChange,
				Document:    challanDocument{challan},
				From:        from,
				To:          to,
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			challan.Status = to
			challan.StockConsumed = report.StockConsumed
			challan.UpdatedBy = &userID

			plans := applyReportToPlans(oldPlans, report)
			assignChallanPlans(challan.Items, plans)
			if err := txChallans.UpdateItemAllocations(ctx, challan.Items); err != nil {
				return err
			}

			return txChallans.Update(ctx, challan)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"challanNumber": challan.ChallanNumber,
		"from":          from,
		"to":            to,
	}).Info("Delivery challan status updated")

	if s.publisher != nil {
		_ = s.publisher.PublishDocumentChanged(ctx, tenantID, challan.ChallanNumber, models.ReferenceTypeChallan, string(from), string(to), userID)
	}
	s.publishReport(ctx, tenantID, userID, report)
	return challan, nil
}

// DeleteChallan soft-deletes a draft challan, restoring its consumed stock.
// Non-draft challans cannot be deleted and must be cancelled instead.
func (s *challanService) DeleteChallan(ctx context.Context, tenantID, userID string, id uuid.UUID) error {
	challan, err := s.challans.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	var report *reconcile.Report
	err = s.engine.RetryConflicts(challan.ChallanNumber, func() error {
		return s.challans.WithTransaction(func(tx *gorm.DB) error {
			txChallans := s.challans.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionDelete,
				Document:    challanDocument{challan},
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			return txChallans.Delete(ctx, tenantID, id)
		})
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"challanNumber": challan.ChallanNumber,
		"tenantId":      tenantID,
	}).Info("Delivery challan deleted")

	s.publishReport(ctx, tenantID, userID, report)
	return nil
}

// publishReport emits best-effort stock events for every ledger entry the
// reconciliation applied.
func (s *challanService) publishReport(ctx context.Context, tenantID, userID string, report *reconcile.Report) {
	publishStockReport(ctx, s.publisher, tenantID, userID, report)
}

func buildChallanItems(tenantID string, reqs []models.DocumentItemRequest) []models.ChallanItem {
	items := make([]models.ChallanItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, models.ChallanItem{
			TenantID:        tenantID,
			ProductID:       r.ProductID,
			Description:     r.Description,
			Quantity:        r.Quantity,
			Rate:            r.Rate,
			Amount:          r.Rate.Mul(decimal.NewFromInt(int64(r.Quantity))),
			StockAllocation: r.StockAllocation,
		})
	}
	return items
}

// challanPlansByProduct collects the persisted allocation per product. When
// a product spans several items the first recorded plan wins; plans are
// stored per product, not per line.
func challanPlansByProduct(items []models.ChallanItem) map[uuid.UUID]*models.AllocationPlan {
	plans := make(map[uuid.UUID]*models.AllocationPlan)
	for i := range items {
		if items[i].StockAllocation == nil {
			continue
		}
		if _, ok := plans[items[i].ProductID]; !ok {
			plans[items[i].ProductID] = items[i].StockAllocation
		}
	}
	return plans
}

func assignChallanPlans(items []models.ChallanItem, plans map[uuid.UUID]*models.AllocationPlan) {
	for i := range items {
		items[i].StockAllocation = plans[items[i].ProductID]
	}
}
