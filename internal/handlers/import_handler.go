package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/services"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportRowError represents an error for a specific row
type ImportRowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Success      bool             `json:"success"`
	TotalRows    int              `json:"totalRows"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
	SkippedCount int              `json:"skippedCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
	CreatedIDs   []string         `json:"createdIds,omitempty"`
}

type ImportHandler struct {
	service services.StockService
}

func NewImportHandler(service services.StockService) *ImportHandler {
	return &ImportHandler{service: service}
}

// OpeningStockImportTemplate returns the template for opening stock records
func OpeningStockImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "opening_stock",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "productId", Description: "Product UUID", Required: true, Type: "string", Example: "6a1f6d2e-9f3b-4c1d-8f2a-0b5e7c9d1a23"},
			{Name: "location", Description: "Warehouse or store location", Required: true, Type: "string", Example: "MAIN"},
			{Name: "room", Description: "Room within the location", Required: false, Type: "string", Example: "A"},
			{Name: "rack", Description: "Rack within the room", Required: false, Type: "string", Example: "R-12"},
			{Name: "quantity", Description: "Opening quantity on hand", Required: true, Type: "number", Example: "100"},
			{Name: "reorderPoint", Description: "Low stock threshold (0 disables alerts)", Required: false, Type: "number", Example: "10"},
		},
		SampleData: []map[string]string{
			{
				"productId":    "6a1f6d2e-9f3b-4c1d-8f2a-0b5e7c9d1a23",
				"location":     "MAIN",
				"room":         "A",
				"rack":         "R-12",
				"quantity":     "100",
				"reorderPoint": "10",
			},
			{
				"productId":    "b4c2e8d1-3a5f-4e6b-9c7d-1f2a3b4c5d6e",
				"location":     "OUTLET",
				"room":         "",
				"rack":         "",
				"quantity":     "40",
				"reorderPoint": "5",
			},
		},
	}
}

// GetOpeningStockImportTemplate returns the opening stock import template
// GET /api/v1/stock/import/template
func (h *ImportHandler) GetOpeningStockImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := OpeningStockImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template, "opening_stock")
	case "xlsx":
		h.generateXLSXTemplate(c, template, "Opening Stock")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "template": template})
	}
}

func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template ImportTemplate, entity string) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		writer.Write(row)
	}
}

func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template ImportTemplate, sheetName string) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", strings.ReplaceAll(strings.ToLower(sheetName), " ", "_")))

	f.Write(c.Writer)
}

// ImportOpeningStock imports opening stock records from CSV or Excel file
// POST /api/v1/stock/import
func (h *ImportHandler) ImportOpeningStock(c *gin.Context) {
	tenantID, _ := c.Get("tenant_id")
	userID, _ := c.Get("user_id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload a CSV or Excel file"},
		})
		return
	}
	defer file.Close()

	skipDuplicates := c.DefaultPostForm("skipDuplicates", "false") == "true"
	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	rows, parseErr := h.parseFile(file, header.Filename)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: parseErr.Error()},
		})
		return
	}

	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_FILE", Message: "The file contains no data rows"},
		})
		return
	}

	result := h.processOpeningStockRows(c, tenantID.(string), userID.(string), rows, skipDuplicates, validateOnly)
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) parseFile(file io.Reader, filename string) ([]map[string]string, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return h.parseCSV(file)
	} else if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return h.parseXLSX(file)
	}
	return nil, fmt.Errorf("only CSV and XLSX files are supported")
}

func (h *ImportHandler) parseCSV(file io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(file)

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		rows = append(rows, row)
		lineNum++
	}

	return rows, nil
}

func (h *ImportHandler) parseXLSX(file io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}

	var rows []map[string]string
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		rows = append(rows, row)
	}

	return rows, nil
}

func (h *ImportHandler) processOpeningStockRows(c *gin.Context, tenantID, userID string, rows []map[string]string, skipDuplicates, validateOnly bool) *ImportResult {
	result := &ImportResult{
		TotalRows:  len(rows),
		Errors:     make([]ImportRowError, 0),
		CreatedIDs: make([]string, 0),
	}

	parsed := make([]services.OpeningStockRow, 0, len(rows))
	for _, row := range rows {
		rowNum, _ := strconv.Atoi(row["_row"])
		rowHasErrors := false
		addError := func(column, code, message string) {
			result.Errors = append(result.Errors, ImportRowError{
				Row:     rowNum,
				Column:  column,
				Code:    code,
				Message: message,
			})
			rowHasErrors = true
		}

		productID, err := uuid.Parse(row["productid"])
		if err != nil {
			addError("productId", "INVALID_PRODUCT_ID", "productId must be a valid UUID")
		}

		location := row["location"]
		if location == "" {
			addError("location", "REQUIRED_FIELD", "Required field 'location' is empty")
		}

		quantity, err := strconv.Atoi(row["quantity"])
		if err != nil {
			addError("quantity", "INVALID_QUANTITY", "quantity must be a whole number")
		} else if quantity < 0 {
			addError("quantity", "NEGATIVE_QUANTITY", "quantity cannot be negative")
		}

		reorderPoint := 0
		if row["reorderpoint"] != "" {
			reorderPoint, err = strconv.Atoi(row["reorderpoint"])
			if err != nil || reorderPoint < 0 {
				addError("reorderPoint", "INVALID_REORDER_POINT", "reorderPoint must be a non-negative whole number")
			}
		}

		if rowHasErrors {
			continue
		}

		parsed = append(parsed, services.OpeningStockRow{
			ProductID:    productID,
			Location:     location,
			Room:         row["room"],
			Rack:         row["rack"],
			Quantity:     quantity,
			ReorderPoint: reorderPoint,
		})
	}

	if validateOnly {
		result.Success = len(result.Errors) == 0
		result.SuccessCount = len(parsed)
		result.FailedCount = result.TotalRows - len(parsed)
		return result
	}

	if len(parsed) == 0 {
		result.Success = false
		result.FailedCount = result.TotalRows
		return result
	}

	outcome, err := h.service.ImportOpeningStock(c.Request.Context(), tenantID, userID, parsed, skipDuplicates)
	if err != nil {
		var dup *services.DuplicateBinError
		code := "IMPORT_FAILED"
		if errors.As(err, &dup) {
			code = "DUPLICATE_BIN"
		}
		result.Success = false
		result.FailedCount = result.TotalRows
		result.Errors = append(result.Errors, ImportRowError{
			Row:     0,
			Code:    code,
			Message: err.Error(),
		})
		return result
	}

	for _, record := range outcome.Created {
		result.CreatedIDs = append(result.CreatedIDs, record.ID.String())
	}

	result.Success = true
	result.SuccessCount = len(outcome.Created)
	result.SkippedCount = outcome.Skipped
	result.FailedCount = result.TotalRows - len(parsed)
	return result
}
