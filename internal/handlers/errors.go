package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stock-ledger-service/internal/models"
	"stock-ledger-service/internal/reconcile"
	"stock-ledger-service/internal/services"
)

// respondReconcileError maps reconciliation and lookup failures to the
// service's error envelope. notFoundErr is the repository sentinel for the
// document kind being handled.
func respondReconcileError(c *gin.Context, err error, notFoundErr error, notFoundMessage string) {
	var insufficient *reconcile.InsufficientStockError
	var noLocation *reconcile.LocationNotFoundError
	var badTransition *reconcile.InvalidTransitionError
	var badLedger *reconcile.LedgerValidationError
	var badStatus *services.InvalidStatusError

	switch {
	case notFoundErr != nil && errors.Is(err, notFoundErr):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NOT_FOUND", Message: notFoundMessage},
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INSUFFICIENT_STOCK", Message: err.Error()},
		})
	case errors.As(err, &noLocation):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "STOCK_LOCATION_NOT_FOUND", Message: err.Error()},
		})
	case errors.As(err, &badStatus):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_STATUS", Message: err.Error()},
		})
	case errors.As(err, &badTransition):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_TRANSITION", Message: err.Error()},
		})
	case errors.Is(err, reconcile.ErrDeleteNotDraft):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "DELETE_NOT_ALLOWED", Message: err.Error()},
		})
	case errors.Is(err, reconcile.ErrConcurrentModification):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "CONCURRENT_MODIFICATION", Message: "Stock changed concurrently, please retry"},
		})
	case errors.As(err, &badLedger):
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "LEDGER_VALIDATION_FAILED", Message: err.Error()},
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"},
		})
	}
}

func respondValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: "VALIDATION_ERROR", Message: err.Error()},
	})
}

func respondInvalidID(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: "INVALID_ID", Message: message},
	})
}

func stringPtr(s string) *string {
	return &s
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// parsePagination reads page/limit query params, capping limit at 100.
func parsePagination(c *gin.Context) (int, int) {
	page := 0
	limit := 0
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := parseInt(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := parseInt(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	return page, limit
}

func paginationMeta(page, limit int, total int64) *models.PaginationMeta {
	if page <= 0 || limit <= 0 {
		return nil
	}
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	return &models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
