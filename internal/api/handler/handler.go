package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/guard"
	"github.com/cuongbtq/docflow/internal/repository"
	"github.com/cuongbtq/docflow/internal/session"
	"github.com/cuongbtq/docflow/internal/workflow"
)

// DocumentStore is the part of the Job Record Gateway the API reads from
type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Record, error)
	ListForOwner(ctx context.Context, ownerID string, page repository.Page) ([]document.Record, *repository.Cursor, error)
	ListAll(ctx context.Context, page repository.Page) ([]document.Record, *repository.Cursor, error)
	Delete(ctx context.Context, id string) error
	ListOwners(ctx context.Context) ([]repository.Owner, error)
}

// Workflows runs processing jobs
type Workflows interface {
	RunOCR(ctx context.Context, in workflow.OCRInput) ([]workflow.AssetOutcome, error)
	RunDocGen(ctx context.Context, in workflow.DocGenInput) (*workflow.DocGenOutcome, error)
}

// Probe reports whether a backing service is reachable
type Probe func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Guard          *guard.Guard
	Documents      DocumentStore
	Workflows      Workflows
	Roles          session.RoleResolver
	ServiceName    string
	MaxUploadBytes int64
	Probes         map[string]Probe
}

// Handler serves the API endpoints
type Handler struct {
	logger         *slog.Logger
	guard          *guard.Guard
	documents      DocumentStore
	workflows      Workflows
	roles          session.RoleResolver
	serviceName    string
	maxUploadBytes int64
	probes         map[string]Probe
}

// New creates a new Handler instance
func New(deps *Dependencies) *Handler {
	roles := deps.Roles
	if roles == nil {
		roles = session.AdminEmails()
	}
	return &Handler{
		logger:         deps.Logger,
		guard:          deps.Guard,
		documents:      deps.Documents,
		workflows:      deps.Workflows,
		roles:          roles,
		serviceName:    deps.ServiceName,
		maxUploadBytes: deps.MaxUploadBytes,
		probes:         deps.Probes,
	}
}

// Roles returns the resolver used to derive caller roles
func (h *Handler) Roles() session.RoleResolver {
	return h.roles
}

const (
	callerKey = "docflow.caller"
	roleKey   = "docflow.role"
)

// SetCaller stores the authenticated session and its role on the request
func SetCaller(c *gin.Context, s *session.Session, role session.Role) {
	c.Set(callerKey, s)
	c.Set(roleKey, role)
	c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), s))
}

// Caller returns the authenticated session and role, or nil and anonymous
func Caller(c *gin.Context) (*session.Session, session.Role) {
	s, _ := c.Get(callerKey)
	sess, _ := s.(*session.Session)
	r, _ := c.Get(roleKey)
	role, ok := r.(session.Role)
	if !ok {
		role = session.RoleAnonymous
	}
	return sess, role
}
