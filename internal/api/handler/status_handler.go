package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/session"
)

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if err := probe(c.Request.Context()); err != nil {
			h.logger.Warn("Health probe failed",
				slog.String("probe", name),
				slog.String("error", err.Error()),
			)
			checks[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": h.serviceName,
		"checks":  checks,
	})
}

// Status handles GET /api/v1/status
// Reports whether the backend credentials are configured
func (h *Handler) Status(c *gin.Context) {
	resp := dto.StatusResponse{Configured: h.guard.Ready()}
	if !resp.Configured {
		resp.Missing = h.guard.Missing()
		resp.Guidance = h.guard.Guidance()
	}
	c.JSON(http.StatusOK, resp)
}

// Session handles GET /api/v1/session
func (h *Handler) Session(c *gin.Context) {
	sess, role := Caller(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": session.MsgInvalidCredentials})
		return
	}

	resp := dto.SessionResponse{
		UserID:  sess.User.ID,
		Email:   sess.User.Email,
		Role:    string(role),
		IsAdmin: role == session.RoleAdmin,
	}
	if !sess.ExpiresAt.IsZero() {
		resp.ExpiresAt = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
