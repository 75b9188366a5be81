package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"stock-ledger-service/internal/events"
	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
	"stock-ledger-service/internal/repository"
)

// InvoiceService defines the business logic interface for sales invoices
type InvoiceService interface {
	CreateInvoice(ctx context.Context, tenantID, userID string, req *models.CreateInvoiceRequest) (*models.SalesInvoice, error)
	GetInvoice(ctx context.Context, tenantID string, id uuid.UUID) (*models.SalesInvoice, error)
	ListInvoices(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.SalesInvoice, int64, error)
	UpdateInvoice(ctx context.Context, tenantID, userID string, id uuid.UUID, req *models.UpdateInvoiceRequest) (*models.SalesInvoice, error)
	UpdateInvoiceStatus(ctx context.Context, tenantID, userID string, id uuid.UUID, to models.DocumentStatus) (*models.SalesInvoice, error)
	DeleteInvoice(ctx context.Context, tenantID, userID string, id uuid.UUID) error
}

type invoiceService struct {
	invoices  *repository.InvoiceRepository
	stock     *repository.StockRepository
	engine    *reconcile.Engine
	publisher *events.StockEventPublisher
	logger    *logrus.Entry
}

func NewInvoiceService(invoices *repository.InvoiceRepository, stock *repository.StockRepository, engine *reconcile.Engine, publisher *events.StockEventPublisher, logger *logrus.Logger) InvoiceService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &invoiceService{
		invoices:  invoices,
		stock:     stock,
		engine:    engine,
		publisher: publisher,
		logger:    logger.WithField("component", "invoice-service"),
	}
}

// CreateInvoice creates a sales invoice and consumes stock for every line in
// the same transaction, like challan creation.
func (s *invoiceService) CreateInvoice(ctx context.Context, tenantID, userID string, req *models.CreateInvoiceRequest) (*models.SalesInvoice, error) {
	status := models.DocumentStatusDraft
	if req.Status != nil {
		if !models.IsValidDocumentStatus(*req.Status) {
			return nil, &InvalidStatusError{Status: *req.Status}
		}
		status = *req.Status
	}

	number, err := s.invoices.GenerateInvoiceNumber(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	items := buildInvoiceItems(tenantID, req.Items)
	subtotal := invoiceSubtotal(items)

	invoice := &models.SalesInvoice{
		TenantID:      tenantID,
		InvoiceNumber: number,
		Status:        status,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		InvoiceDate:   time.Now().UTC(),
		DueDate:       req.DueDate,
		Notes:         req.Notes,
		Subtotal:      subtotal,
		Tax:           req.Tax,
		Total:         subtotal.Add(req.Tax),
		CreatedBy:     &userID,
		Items:         items,
	}

	var report *reconcile.Report
	err = s.engine.RetryConflicts(number, func() error {
		return s.invoices.WithTransaction(func(tx *gorm.DB) error {
			txInvoices := s.invoices.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			if err := txInvoices.Create(ctx, invoice); err != nil {
				return err
			}

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionCreate,
				Document:    invoiceDocument{invoice},
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			plans := applyReportToPlans(nil, report)
			assignInvoicePlans(invoice.Items, plans)
			if err := txInvoices.UpdateItemAllocations(ctx, invoice.Items); err != nil {
				return err
			}

			invoice.StockConsumed = report.StockConsumed
			return tx.Model(invoice).Update("stock_consumed", invoice.StockConsumed).Error
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoiceNumber": invoice.InvoiceNumber,
		"tenantId":      tenantID,
		"items":         len(invoice.Items),
	}).Info("Sales invoice created")

	publishStockReport(ctx, s.publisher, tenantID, userID, report)
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, tenantID string, id uuid.UUID) (*models.SalesInvoice, error) {
	return s.invoices.GetByID(ctx, tenantID, id)
}

func (s *invoiceService) ListInvoices(ctx context.Context, tenantID string, status *models.DocumentStatus, page, limit int) ([]models.SalesInvoice, int64, error) {
	return s.invoices.List(ctx, tenantID, status, page, limit)
}

// UpdateInvoice replaces the invoice's items and recomputes totals. Quantity
// differences on a consumed invoice are applied to stock in the same
// transaction.
func (s *invoiceService) UpdateInvoice(ctx context.Context, tenantID, userID string, id uuid.UUID, req *models.UpdateInvoiceRequest) (*models.SalesInvoice, error) {
	invoice, err := s.invoices.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	oldItems := invoiceItemsToDocumentItems(invoice.Items)
	oldPlans := invoicePlansByProduct(invoice.Items)
	newItems := buildInvoiceItems(tenantID, req.Items)

	if req.CustomerName != nil {
		invoice.CustomerName = *req.CustomerName
	}
	if req.DueDate != nil {
		invoice.DueDate = req.DueDate
	}
	if req.Tax != nil {
		invoice.Tax = *req.Tax
	}
	if req.Notes != nil {
		invoice.Notes = req.Notes
	}
	invoice.UpdatedBy = &userID
	invoice.Items = newItems
	invoice.Subtotal = invoiceSubtotal(newItems)
	invoice.Total = invoice.Subtotal.Add(invoice.Tax)

	var report *reconcile.Report
	err = s.engine.RetryConflicts(invoice.InvoiceNumber, func() error {
		return s.invoices.WithTransaction(func(tx *gorm.DB) error {
			txInvoices := s.invoices.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionUpdate,
				Document:    invoiceDocument{invoice},
				OldItems:    oldItems,
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			if err := txInvoices.ReplaceItems(ctx, invoice.ID, invoice.Items); err != nil {
				return err
			}

			if invoice.StockConsumed {
				plans := applyReportToPlans(oldPlans, report)
				assignInvoicePlans(invoice.Items, plans)
				if err := txInvoices.UpdateItemAllocations(ctx, invoice.Items); err != nil {
					return err
				}
			}

			return txInvoices.Update(ctx, invoice)
		})
	})
	if err != nil {
		return nil, err
	}

	publishStockReport(ctx, s.publisher, tenantID, userID, report)
	return invoice, nil
}

// UpdateInvoiceStatus moves the invoice through its lifecycle with the
// transition's stock effect.
func (s *invoiceService) UpdateInvoiceStatus(ctx context.Context, tenantID, userID string, id uuid.UUID, to models.DocumentStatus) (*models.SalesInvoice, error) {
	invoice, err := s.invoices.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	from := invoice.Status
	oldPlans := invoicePlansByProduct(invoice.Items)

	var report *reconcile.Report
	err = s.engine.RetryConflicts(invoice.InvoiceNumber, func() error {
		return s.invoices.WithTransaction(func(tx *gorm.DB) error {
			txInvoices := s.invoices.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionStatusChange,
				Document:    invoiceDocument{invoice},
				From:        from,
				To:          to,
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			invoice.Status = to
			invoice.StockConsumed = report.StockConsumed
			invoice.UpdatedBy = &userID

			plans := applyReportToPlans(oldPlans, report)
			assignInvoicePlans(invoice.Items, plans)
			if err := txInvoices.UpdateItemAllocations(ctx, invoice.Items); err != nil {
				return err
			}

			return txInvoices.Update(ctx, invoice)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoiceNumber": invoice.InvoiceNumber,
		"from":          from,
		"to":            to,
	}).Info("Sales invoice status updated")

	if s.publisher != nil {
		_ = s.publisher.PublishDocumentChanged(ctx, tenantID, invoice.InvoiceNumber, models.ReferenceTypeInvoice, string(from), string(to), userID)
	}
	publishStockReport(ctx, s.publisher, tenantID, userID, report)
	return invoice, nil
}

// DeleteInvoice soft-deletes a draft invoice, restoring its consumed stock.
func (s *invoiceService) DeleteInvoice(ctx context.Context, tenantID, userID string, id uuid.UUID) error {
	invoice, err := s.invoices.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	var report *reconcile.Report
	err = s.engine.RetryConflicts(invoice.InvoiceNumber, func() error {
		return s.invoices.WithTransaction(func(tx *gorm.DB) error {
			txInvoices := s.invoices.WithTx(tx)
			txStock := s.stock.WithTx(tx)

			report, err = s.engine.Reconcile(ctx, txStock, tenantID, reconcile.Transition{
				Kind:        reconcile.TransitionDelete,
				Document:    invoiceDocument{invoice},
				PerformedBy: userID,
			})
			if err != nil {
				return err
			}

			return txInvoices.Delete(ctx, tenantID, id)
		})
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"invoiceNumber": invoice.InvoiceNumber,
		"tenantId":      tenantID,
	}).Info("Sales invoice deleted")

	publishStockReport(ctx, s.publisher, tenantID, userID, report)
	return nil
}

func buildInvoiceItems(tenantID string, reqs []models.DocumentItemRequest) []models.InvoiceItem {
	items := make([]models.InvoiceItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, models.InvoiceItem{
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

func invoiceSubtotal(items []models.InvoiceItem) decimal.Decimal {
	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].Amount)
	}
	return subtotal
}

func invoicePlansByProduct(items []models.InvoiceItem) map[uuid.UUID]*models.AllocationPlan {
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

func assignInvoicePlans(items []models.InvoiceItem, plans map[uuid.UUID]*models.AllocationPlan) {
	for i := range items {
		items[i].StockAllocation = plans[items[i].ProductID]
	}
}
