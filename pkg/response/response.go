package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	ErrCodeInsufficientItems = "INSUFFICIENT_INVENTORY"
	ErrCodeAccountRestricted = "ACCOUNT_RESTRICTED"
	ErrCodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeListingNotActive  = "LISTING_NOT_ACTIVE"
	ErrCodeListingQuantity   = "INSUFFICIENT_LISTING_QUANTITY"
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"
)

// Handle processes the error and returns the appropriate response. Every
// engine error kind maps to one stable code so clients can match on codes
// rather than messages.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrListingNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, types.ErrListingNotActive):
		errorResponse(c, http.StatusConflict, ErrCodeListingNotActive, err.Error())
	case errors.Is(err, types.ErrInsufficientListingQuantity):
		errorResponse(c, http.StatusConflict, ErrCodeListingQuantity, err.Error())
	case errors.Is(err, types.ErrInsufficientFunds):
		errorResponse(c, http.StatusUnprocessableEntity, ErrCodeInsufficientFunds, err.Error())
	case errors.Is(err, types.ErrInsufficientInventory):
		errorResponse(c, http.StatusUnprocessableEntity, ErrCodeInsufficientItems, err.Error())
	case errors.Is(err, types.ErrAccountRestricted):
		errorResponse(c, http.StatusForbidden, ErrCodeAccountRestricted, err.Error())
	case errors.Is(err, types.ErrCapacityExceeded):
		errorResponse(c, http.StatusUnprocessableEntity, ErrCodeCapacityExceeded, err.Error())
	case errors.Is(err, types.ErrRateLimited):
		errorResponse(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	case errors.Is(err, types.ErrValidation):
		errorResponse(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case errors.Is(err, types.ErrConflict):
		errorResponse(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, types.ErrTransactionFailed):
		errorResponse(c, http.StatusInternalServerError, ErrCodeTransactionFailed, "Operation could not be completed")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	errorResponse(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	errorResponse(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	errorResponse(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	errorResponse(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
