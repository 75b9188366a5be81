package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/repository"
	"stock-ledger-service/internal/services"
)

type ChallanHandler struct {
	service services.ChallanService
}

func NewChallanHandler(service services.ChallanService) *ChallanHandler {
	return &ChallanHandler{service: service}
}

// CreateChallan creates a delivery challan and consumes stock for its items
// POST /api/v1/challans
func (h *ChallanHandler) CreateChallan(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	var req models.CreateChallanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	challan, err := h.service.CreateChallan(c.Request.Context(), tenantID.(string), userID.(string), &req)
	if err != nil {
		respondReconcileError(c, err, repository.ErrChallanNotFound, "Delivery challan not found")
		return
	}

	c.JSON(http.StatusCreated, models.ChallanResponse{
		Success: true,
		Data:    challan,
		Message: stringPtr("Delivery challan created successfully"),
	})
}

// GetChallan retrieves a delivery challan by ID
// GET /api/v1/challans/:id
func (h *ChallanHandler) GetChallan(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid challan ID")
		return
	}

	challan, err := h.service.GetChallan(c.Request.Context(), tenantID.(string), id)
	if err != nil {
		respondReconcileError(c, err, repository.ErrChallanNotFound, "Delivery challan not found")
		return
	}

	c.JSON(http.StatusOK, models.ChallanResponse{
		Success: true,
		Data:    challan,
	})
}

// ListChallans retrieves delivery challans with pagination
// GET /api/v1/challans
func (h *ChallanHandler) ListChallans(c *gin.Context) {
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
	challans, total, err := h.service.ListChallans(c.Request.Context(), tenantID.(string), status, page, limit)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.ChallanListResponse{
		Success:    true,
		Data:       challans,
		Pagination: paginationMeta(page, limit, total),
	})
}

// UpdateChallan replaces the challan's items and header fields
// PUT /api/v1/challans/:id
func (h *ChallanHandler) UpdateChallan(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid challan ID")
		return
	}

	var req models.UpdateChallanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	challan, err := h.service.UpdateChallan(c.Request.Context(), tenantID.(string), userID.(string), id, &req)
	if err != nil {
		respondReconcileError(c, err, repository.ErrChallanNotFound, "Delivery challan not found")
		return
	}

	c.JSON(http.StatusOK, models.ChallanResponse{
		Success: true,
		Data:    challan,
		Message: stringPtr("Delivery challan updated successfully"),
	})
}

// UpdateChallanStatus moves the challan through its lifecycle
// PATCH /api/v1/challans/:id/status
func (h *ChallanHandler) UpdateChallanStatus(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid challan ID")
		return
	}

	var req models.UpdateDocumentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	challan, err := h.service.UpdateChallanStatus(c.Request.Context(), tenantID.(string), userID.(string), id, req.Status)
	if err != nil {
		respondReconcileError(c, err, repository.ErrChallanNotFound, "Delivery challan not found")
		return
	}

	c.JSON(http.StatusOK, models.ChallanResponse{
		Success: true,
		Data:    challan,
		Message: stringPtr("Delivery challan status updated successfully"),
	})
}

// DeleteChallan deletes a draft challan, restoring its consumed stock
// DELETE /api/v1/challans/:id
func (h *ChallanHandler) DeleteChallan(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "Invalid challan ID")
		return
	}

	if err := h.service.DeleteChallan(c.Request.Context(), tenantID.(string), userID.(string), id); err != nil {
		respondReconcileError(c, err, repository.ErrChallanNotFound, "Delivery challan not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Delivery challan deleted successfully",
	})
}
