package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/services"
)

type StockHandler struct {
	service services.StockService
}

func NewStockHandler(service services.StockService) *StockHandler {
	return &StockHandler{service: service}
}

// ListStock retrieves stock records with optional filters
// GET /api/v1/stock
func (h *StockHandler) ListStock(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var productID *uuid.UUID
	if productStr := c.Query("productId"); productStr != "" {
		id, err := uuid.Parse(productStr)
		if err != nil {
			respondInvalidID(c, "Invalid product ID")
			return
		}
		productID = &id
	}

	var location *string
	if loc := c.Query("location"); loc != "" {
		location = &loc
	}

	page, limit := parsePagination(c)
	records, total, err := h.service.ListStock(c.Request.Context(), tenantID.(string), productID, location, page, limit)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.StockRecordListResponse{
		Success:    true,
		Data:       records,
		Pagination: paginationMeta(page, limit, total),
	})
}

// GetStockLevel retrieves one bin's stock record
// GET /api/v1/stock/level
func (h *StockHandler) GetStockLevel(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	productID, err := uuid.Parse(c.Query("productId"))
	if err != nil {
		respondInvalidID(c, "Invalid or missing product ID")
		return
	}

	location := c.Query("location")
	if location == "" {
		respondValidationError(c, fmt.Errorf("location is required"))
		return
	}

	record, err := h.service.GetStockLevel(c.Request.Context(), tenantID.(string), productID, location, c.Query("room"), c.Query("rack"))
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.StockRecordResponse{
		Success: true,
		Data:    record,
	})
}

// GetAvailable aggregates a product's available quantity across all bins
// GET /api/v1/stock/available
func (h *StockHandler) GetAvailable(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	productID, err := uuid.Parse(c.Query("productId"))
	if err != nil {
		respondInvalidID(c, "Invalid or missing product ID")
		return
	}

	available, err := h.service.GetAvailableQuantity(c.Request.Context(), tenantID.(string), productID)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.AggregateAvailableResponse{
		Success:   true,
		ProductID: productID,
		Available: available,
	})
}

// GetLowStock returns records at or below their reorder point
// GET /api/v1/stock/low
func (h *StockHandler) GetLowStock(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var location *string
	if loc := c.Query("location"); loc != "" {
		location = &loc
	}

	records, err := h.service.GetLowStock(c.Request.Context(), tenantID.(string), location)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, models.StockRecordListResponse{
		Success: true,
		Data:    records,
	})
}

// GetLedger returns ledger entries, either the full trail of one document
// (referenceId) or the tenant's entries with optional product filter
// GET /api/v1/ledger
func (h *StockHandler) GetLedger(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	if referenceID := c.Query("referenceId"); referenceID != "" {
		entries, err := h.service.GetLedgerByReference(c.Request.Context(), tenantID.(string), referenceID)
		if err != nil {
			respondReconcileError(c, err, nil, "")
			return
		}
		c.JSON(http.StatusOK, models.LedgerListResponse{
			Success: true,
			Data:    entries,
		})
		return
	}

	var productID *uuid.UUID
	if productStr := c.Query("productId"); productStr != "" {
		id, err := uuid.Parse(productStr)
		if err != nil {
			respondInvalidID(c, "Invalid product ID")
			return
		}
		productID = &id
	}

	page, limit := parsePagination(c)
	entries, total, err := h.service.ListLedger(c.Request.Context(), tenantID.(string), productID, page, limit)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       entries,
		"pagination": paginationMeta(page, limit, total),
	})
}

// ExportLedger streams the tenant's ledger as an Excel workbook
// GET /api/v1/ledger/export
func (h *StockHandler) ExportLedger(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")

	var productID *uuid.UUID
	if productStr := c.Query("productId"); productStr != "" {
		id, err := uuid.Parse(productStr)
		if err != nil {
			respondInvalidID(c, "Invalid product ID")
			return
		}
		productID = &id
	}

	entries, _, err := h.service.ListLedger(c.Request.Context(), tenantID.(string), productID, 0, 0)
	if err != nil {
		respondReconcileError(c, err, nil, "")
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Stock Ledger"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	headers := []string{"Date", "Product ID", "Location", "Room", "Rack", "Type", "Quantity", "Previous", "Resulting", "Reason", "Reference", "Performed By"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, entry := range entries {
		values := []interface{}{
			entry.TransactionDate.Format(time.RFC3339),
			entry.ProductID.String(),
			entry.Location,
			entry.Room,
			entry.Rack,
			string(entry.TransactionType),
			entry.Quantity,
			entry.PreviousQuantity,
			entry.ResultingQuantity,
			entry.Reason,
			entry.ReferenceID,
			entry.PerformedBy,
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=stock_ledger_%s.xlsx", time.Now().Format("20060102")))
	f.Write(c.Writer)
}
