// Package functions serves the OCR and document-generation processing
// functions. Both return placeholder outputs.
package functions

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/processing"
)

// Function names, also the last path segment of their routes
const (
	NameOCR    = "ocr-convert"
	NameDocGen = "docgen"
)

// RoutePrefix is where the functions are mounted in server mode
const RoutePrefix = "/functions/v1"

// AllowedHeaders are accepted by CORS preflight
const AllowedHeaders = "authorization, x-client-info, apikey, content-type"

// Service implements both functions
type Service struct {
	logger  *slog.Logger
	latency time.Duration
	sleep   func(*gin.Context, time.Duration) bool
}

// New creates a new Service. latency delays every successful response.
func New(logger *slog.Logger, latency time.Duration) *Service {
	return &Service{
		logger:  logger,
		latency: latency,
		sleep:   wait,
	}
}

// CORS answers preflight requests before any payload evaluation and
// adds the CORS headers to every response
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", AllowedHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Routes mounts both functions under RoutePrefix
func (s *Service) Routes(r gin.IRouter) {
	g := r.Group(RoutePrefix)
	g.Use(CORS())
	g.Any("/"+NameOCR, s.OCR)
	g.Any("/"+NameDocGen, s.DocGen)
}

// OCR handles the ocr-convert function
func (s *Service) OCR(c *gin.Context) {
	var req processing.OCRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Malformed OCR payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, processing.ErrorResponse{Error: "Invalid request payload"})
		return
	}

	s.logger.Info("Processing OCR",
		slog.String("image_path", req.ImagePath),
		slog.Bool("docx", req.Formats.Docx),
		slog.Bool("pdf", req.Formats.PDF),
	)

	if !s.sleep(c, s.latency) {
		c.JSON(http.StatusServiceUnavailable, processing.ErrorResponse{Error: "OCR processing failed"})
		return
	}
	c.JSON(http.StatusOK, processing.MockOCR(req.Formats))
}

// DocGen handles the docgen function
func (s *Service) DocGen(c *gin.Context) {
	var req processing.DocGenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("Malformed docgen payload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, processing.ErrorResponse{Error: "Invalid request payload"})
		return
	}

	s.logger.Info("Generating document",
		slog.Int("prompt_length", len(req.Prompt)),
		slog.String("attachment_path", req.AttachmentPath),
	)

	if !s.sleep(c, s.latency) {
		c.JSON(http.StatusServiceUnavailable, processing.ErrorResponse{Error: "Document generation failed"})
		return
	}
	c.JSON(http.StatusOK, processing.MockDocGen(req.Prompt))
}

// Handler wraps a single function in its own engine so it can be served
// at any path, as the functions framework does
func (s *Service) Handler(name string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORS())

	h := s.OCR
	if strings.EqualFold(name, NameDocGen) {
		h = s.DocGen
	}
	r.NoRoute(h)
	return r
}

// Register declares both functions with the functions framework
func (s *Service) Register() {
	functions.HTTP(NameOCR, s.Handler(NameOCR).ServeHTTP)
	functions.HTTP(NameDocGen, s.Handler(NameDocGen).ServeHTTP)
}

func wait(c *gin.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.Request.Context().Done():
		return false
	}
}
