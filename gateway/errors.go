package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/example/craftshop/pkg/models"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// statusFor maps a service error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "Invalid order"
	case errors.Is(err, models.ErrInvalidOfferCode):
		return http.StatusBadRequest, "Invalid offer code"
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authorization denied"
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status change"
	case errors.Is(err, models.ErrDuplicateOrderNumber):
		return http.StatusConflict, "Could not assign order number, please retry"
	case errors.Is(err, models.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Server error"
	}
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	_ = c.Error(err)

	resp := errorResponse{Message: message}
	// 403 and 404 bodies stay bare so they do not leak anything about the order.
	if status != http.StatusForbidden && status != http.StatusNotFound {
		resp.Error = err.Error()
	}
	c.JSON(status, resp)
}
