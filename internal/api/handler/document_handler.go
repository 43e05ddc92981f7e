package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/repository"
	"github.com/cuongbtq/docflow/internal/session"
)

// ListDocuments handles GET /api/v1/documents
// Lists the caller's documents, newest first
func (h *Handler) ListDocuments(c *gin.Context) {
	sess, _ := Caller(c)

	page, ok := h.bindPage(c)
	if !ok {
		return
	}

	records, next, err := h.documents.ListForOwner(c.Request.Context(), sess.User.ID, page)
	if err != nil {
		h.fail(c, err, "Failed to list documents")
		return
	}

	c.JSON(http.StatusOK, dto.ListDocumentsResponse{
		Documents:  dto.FromRecords(records),
		NextCursor: EncodeCursor(next),
	})
}

// GetDocument handles GET /api/v1/documents/:id
// Owners see their own documents, admins see all
func (h *Handler) GetDocument(c *gin.Context) {
	sess, role := Caller(c)
	id := c.Param("id")

	rec, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to get document")
		return
	}

	if rec.UserID != sess.User.ID && role != session.RoleAdmin {
		h.logger.Warn("Document access denied",
			slog.String("document_id", id),
			slog.String("user_id", sess.User.ID),
		)
		h.fail(c, document.ErrRecordNotFound, "Failed to get document")
		return
	}

	c.JSON(http.StatusOK, dto.FromRecord(*rec))
}

func (h *Handler) bindPage(c *gin.Context) (repository.Page, bool) {
	var req dto.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return repository.Page{}, false
	}

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return repository.Page{}, false
	}

	return repository.Page{Limit: req.PageSize, Cursor: cursor}, true
}
