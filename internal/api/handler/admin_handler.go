package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/api/dto"
)

// ListAllDocuments handles GET /api/v1/admin/documents
func (h *Handler) ListAllDocuments(c *gin.Context) {
	page, ok := h.bindPage(c)
	if !ok {
		return
	}

	records, next, err := h.documents.ListAll(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err, "Failed to list documents")
		return
	}

	c.JSON(http.StatusOK, dto.ListDocumentsResponse{
		Documents:  dto.FromRecords(records),
		NextCursor: EncodeCursor(next),
	})
}

// ListUsers handles GET /api/v1/admin/users
// Users are derived from document ownership
func (h *Handler) ListUsers(c *gin.Context) {
	owners, err := h.documents.ListOwners(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, dto.ListOwnersResponse{Users: dto.FromOwners(owners)})
}

// DeleteDocument handles DELETE /api/v1/admin/documents/:id
func (h *Handler) DeleteDocument(c *gin.Context) {
	sess, _ := Caller(c)
	id := c.Param("id")

	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "Failed to delete document")
		return
	}

	h.logger.Info("Document deleted",
		slog.String("document_id", id),
		slog.String("admin", sess.User.Email),
	)
	c.Status(http.StatusNoContent)
}
