package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/upload"
	"github.com/cuongbtq/docflow/internal/workflow"
)

// Multipart field names
const (
	FieldFiles      = "files"
	FieldDocx       = "docx"
	FieldPDF        = "pdf"
	FieldPrompt     = "prompt"
	FieldAttachment = "attachment"
)

// ConvertOCR handles POST /api/v1/ocr
// Runs OCR over every uploaded image and reports one result per image
func (h *Handler) ConvertOCR(c *gin.Context) {
	sess, _ := Caller(c)

	form, ok := h.parseMultipart(c)
	if !ok {
		return
	}

	assets, closeAll, err := openFiles(form.File[FieldFiles])
	defer closeAll()
	if err != nil {
		h.fail(c, err, "Failed to read uploaded files")
		return
	}

	formats := document.OutputFormats{
		Docx: formBool(form, FieldDocx),
		PDF:  formBool(form, FieldPDF),
	}

	outcomes, err := h.workflows.RunOCR(c.Request.Context(), workflow.OCRInput{
		OwnerID: sess.User.ID,
		Assets:  assets,
		Formats: formats,
	})
	if err != nil && outcomes == nil {
		h.fail(c, err, "Processing failed")
		return
	}

	resp := dto.OCRResponse{Results: dto.FromOutcomes(outcomes)}
	if err != nil {
		resp.Error = errorMessage(err, "Processing failed")
		h.logger.Warn("OCR request finished with failures",
			slog.String("user_id", sess.User.ID),
			slog.Int("results", len(outcomes)),
			slog.Int("requested", len(assets)),
			slog.String("error", err.Error()),
		)
		c.JSON(StatusFor(err), resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GenerateDocument handles POST /api/v1/docgen
// Accepts JSON {"prompt"} or a multipart form with prompt and an optional attachment
func (h *Handler) GenerateDocument(c *gin.Context) {
	sess, _ := Caller(c)
	in := workflow.DocGenInput{OwnerID: sess.User.ID}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, ok := h.parseMultipart(c)
		if !ok {
			return
		}
		in.Prompt = formValue(form, FieldPrompt)

		files, closeAll, err := openFiles(form.File[FieldAttachment])
		defer closeAll()
		if err != nil {
			h.fail(c, err, "Failed to read attachment")
			return
		}
		if len(files) > 0 {
			in.Attachment = &files[0]
		}
	} else {
		var req dto.DocGenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		in.Prompt = req.Prompt
	}

	out, err := h.workflows.RunDocGen(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "Generation failed")
		return
	}

	c.JSON(http.StatusOK, dto.FromDocGen(out))
}

func (h *Handler) parseMultipart(c *gin.Context) (*multipart.Form, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Upload is too large"})
			return nil, false
		}
		h.logger.Warn("Invalid multipart form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return nil, false
	}
	return form, true
}

func openFiles(headers []*multipart.FileHeader) ([]upload.File, func(), error) {
	closers := make([]io.Closer, 0, len(headers))
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, &upload.UploadError{Path: fh.Filename, Err: err}
		}
		closers = append(closers, f)
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return files, closeAll, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func formBool(form *multipart.Form, key string) bool {
	v := strings.TrimSpace(formValue(form, key))
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
