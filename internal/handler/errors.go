package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/go-marketplace-backoffice/internal/service"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrUpload):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInsufficientStock), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal failures; everything else reaches the caller as is.
func errorMessage(c *gin.Context, err error) (int, string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		return status, "internal server error"
	}
	return status, err.Error()
}

func writeError(c *gin.Context, err error) {
	status, msg := errorMessage(c, err)
	c.JSON(status, gin.H{"error": msg})
}
