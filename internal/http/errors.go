package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"advisor-twin/internal/service"
)

const internalErrorMessage = "Internal server error"

// writeError maps service errors onto status codes with messages that never
// carry internal detail. Anything unrecognised is logged and reported as 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
	case errors.Is(err, service.ErrIncorrectPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, service.ErrUpdateFailed):
		requestLog(c, h.logger).WithError(err).Error("password update matched no user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
	default:
		requestLog(c, h.logger).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
	}
}

// bindJSON decodes the body into req. Missing required fields answer with
// missing, anything else with a generic malformed-body message.
func bindJSON(c *gin.Context, req any, missing string) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		badRequest(c, missing)
	} else {
		badRequest(c, "Invalid request body")
	}
	return false
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
