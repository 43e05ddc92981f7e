package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/docflow/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, verifier TokenVerifier) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	h := handler.New(deps)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		// GET /api/v1/status - configuration state and setup guidance
		v1.GET("/status", h.Status)

		authed := v1.Group("")
		authed.Use(RequireConfigured(deps.Guard))
		authed.Use(Authenticate(verifier, h.Roles(), deps.Logger))
		{
			authed.GET("/session", h.Session)

			// POST /api/v1/ocr - multipart images plus requested formats
			authed.POST("/ocr", h.ConvertOCR)
			// POST /api/v1/docgen - prompt with optional attachment
			authed.POST("/docgen", h.GenerateDocument)

			documents := authed.Group("/documents")
			{
				documents.GET("", h.ListDocuments)
				documents.GET("/:id", h.GetDocument)
			}

			admin := authed.Group("/admin")
			admin.Use(RequireAdmin())
			{
				admin.GET("/documents", h.ListAllDocuments)
				admin.GET("/users", h.ListUsers)
				admin.DELETE("/documents/:id", h.DeleteDocument)
			}
		}
	}

	return r
}
