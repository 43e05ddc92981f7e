package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/guard"
	"github.com/cuongbtq/docflow/internal/processing"
	"github.com/cuongbtq/docflow/internal/session"
	"github.com/cuongbtq/docflow/internal/upload"
	"github.com/cuongbtq/docflow/internal/workflow"
)

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation),
		errors.Is(err, upload.ErrInvalidFile),
		errors.Is(err, document.ErrInvalidPatch):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, document.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, guard.ErrConfigurationMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, processing.ErrProcessing),
		errors.Is(err, upload.ErrUpload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the body text for err. Persistence and unknown
// failures never leak internals.
func errorMessage(err error, fallback string) string {
	var se *workflow.StepError
	switch {
	case errors.Is(err, workflow.ErrValidation), errors.As(err, &se):
		return workflow.Message(err)
	case errors.Is(err, guard.ErrConfigurationMissing):
		return session.MsgMissingConfig
	case errors.Is(err, document.ErrRecordNotFound):
		return "Document not found"
	}
	return fallback
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Warn(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": errorMessage(err, fallback)})
}
