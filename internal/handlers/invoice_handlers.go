package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/services"
)

type InvoiceHandler struct {
	service services.InvoiceService
}

func NewInvoiceHandler(service services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// CreateInvoice creates a sales invoice and consumes stock for its items
// POST /api/v1/invoices
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	var req models.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	invoice, err := h.service.CreateInvoice(c.Request.Context(), tenantID.(string), userID.(string), &req)
	if err != nil {
		respondReconcileError(c, err, repository.ErrInvoiceNotFound, "Sales invoice not found")
		return
	}

	c.JSON(http.StatusCreated, models.InvoiceResponse{
		Success: true,
		Data:    invoice,
		Message: stringPtr("Sales invoice created successfully"),
	})
}

// GetInvoice retrieves a sales invoice by ID
// GET /api/v1/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid invoice ID")
		return
	}

	invoice, err := h.service.GetInvoice(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		respondReconcileError(c, err, repository.ErrInvoiceNotFound, "Sales invoice not found")
		return
	}

	c.JSON(http.StatusOK, models.InvoiceResponse{
		Success: true,
		Data:    invoice,
	})
}

// ListInvoices retrieves sales invoices with pagination
// GET /api/v1/invoices
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var status *models.DocumentStatus
	if statusStr := c.Query("status"); statusStr != "" {
		s := models.DocumentStatus(statusStr)
		if !models.IsValidDocumentStatus(s) {
			respondInvalidID(c, "Invalid status filter")
			return
		}
		status = &s
	}

	page, limit := parsePagination(c)
	invoices, total, err := h.service.ListInvoices(c.Request.Context(), tenantID.(string), status, page, limit)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.InvoiceListResponse{
		Success:    true,
		Data:       invoices,
		Pagination: paginationMeta(page, limit, total),
	})
}

// UpdateInvoice replaces the invoice's items and recomputes totals
// PUT /api/v1/invoices/:id
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid invoice ID")
		return
	}

	var req models.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	invoice, err := h.service.UpdateInvoice(c.Request.Context(), tenantID.(string), userID.(string), id, &req)
	if err != nil {
		respondReconcileError(c, err, repository.ErrInvoiceNotFound, "Sales invoice not found")
		return
	}

	c.JSON(http.StatusOK, models.InvoiceResponse{
		Success: true,
		Data:    invoice,
		Message: stringPtr("Sales invoice updated successfully"),
	})
}

// UpdateInvoiceStatus moves the invoice through its lifecycle
// PATCH /api/v1/invoices/:id/status
func (h *InvoiceHandler) UpdateInvoiceStatus(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid invoice ID")
		return
	}

	var req models.UpdateDocumentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	invoice, err := h.service.UpdateInvoiceStatus(c.Request.Context(), tenantID.(string), userID.(string), id, req.Status)
	if err != nil {
		respondReconcileError(c, err, repository.ErrInvoiceNotFound, "Sales invoice not found")
		return
	}

	c.JSON(http.StatusOK, models.InvoiceResponse{
		Success: true,
		Data:    invoice,
		Message: stringPtr("Sales invoice status updated successfully"),
	})
}

// DeleteInvoice deletes a draft invoice, restoring its consumed stock
// DELETE /api/v1/invoices/:id
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid invoice ID")
		return
	}

	if err := h.service.DeleteInvoice(c.Request.Context(), tenantID.(string), userID.(string), id); err != nil {
		respondReconcileError(c, err, repository.ErrInvoiceNotFound, "Sales invoice not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sales invoice deleted successfully",
	})
}
