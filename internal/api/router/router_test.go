package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/api/handler"
	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/guard"
	"github.com/cuongbtq/docflow/internal/processing"
	"github.com/cuongbtq/docflow/internal/repository"
	"github.com/cuongbtq/docflow/internal/session"
	"github.com/cuongbtq/docflow/internal/workflow"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
	adminEmail = "admin@example.com"
	docID      = "6f1c2b8e-3a4d-4e5f-9a0b-1c2d3e4f5a6b"
)

type mockDocuments struct {
	mock.Mock
}

func (m *mockDocuments) Get(ctx context.Context, id string) (*document.Record, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*document.Record)
	return rec, args.Error(1)
}

func (m *mockDocuments) ListForOwner(ctx context.Context, ownerID string, page repository.Page) ([]document.Record, *repository.Cursor, error) {
	args := m.Called(ctx, ownerID, page)
	records, _ := args.Get(0).([]document.Record)
	next, _ := args.Get(1).(*repository.Cursor)
	return records, next, args.Error(2)
}

func (m *mockDocuments) ListAll(ctx context.Context, page repository.Page) ([]document.Record, *repository.Cursor, error) {
	args := m.Called(ctx, page)
	records, _ := args.Get(0).([]document.Record)
	next, _ := args.Get(1).(*repository.Cursor)
	return records, next, args.Error(2)
}

func (m *mockDocuments) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDocuments) ListOwners(ctx context.Context) ([]repository.Owner, error) {
	args := m.Called(ctx)
	owners, _ := args.Get(0).([]repository.Owner)
	return owners, args.Error(1)
}

type mockWorkflows struct {
	mock.Mock
}

func (m *mockWorkflows) RunOCR(ctx context.Context, in workflow.OCRInput) ([]workflow.AssetOutcome, error) {
	args := m.Called(ctx, in)
	outcomes, _ := args.Get(0).([]workflow.AssetOutcome)
	return outcomes, args.Error(1)
}

func (m *mockWorkflows) RunDocGen(ctx context.Context, in workflow.DocGenInput) (*workflow.DocGenOutcome, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*workflow.DocGenOutcome)
	return out, args.Error(1)
}

type staticVerifier map[string]*session.Session

func (v staticVerifier) Verify(token string) (*session.Session, error) {
	if s, ok := v[token]; ok {
		return s, nil
	}
	return nil, session.ErrInvalidToken
}

type testServer struct {
	engine    *gin.Engine
	documents *mockDocuments
	workflows *mockWorkflows
}

func newTestServer(t *testing.T, g *guard.Guard) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{documents: &mockDocuments{}, workflows: &mockWorkflows{}}
	deps := &handler.Dependencies{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Guard:          g,
		Documents:      ts.documents,
		Workflows:      ts.workflows,
		Roles:          session.AdminEmails(adminEmail),
		ServiceName:    "docflow-api",
		MaxUploadBytes: 1 << 20,
	}
	verifier := staticVerifier{
		userToken:  {AccessToken: userToken, User: session.User{ID: "user-1", Email: "user@example.com"}},
		adminToken: {AccessToken: adminToken, User: session.User{ID: "admin-1", Email: adminEmail}},
	}
	ts.engine = SetupRouter(deps, verifier)

	t.Cleanup(func() {
		ts.documents.AssertExpectations(t)
		ts.workflows.AssertExpectations(t)
	})
	return ts
}

func configured() *guard.Guard {
	return guard.New("https://project.example.co", "anon-key")
}

func (ts *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthAndPreflight(t *testing.T) {
	ts := newTestServer(t, configured())

	w := ts.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docflow-api")

	w = ts.do(http.MethodOptions, "/api/v1/ocr", "", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth_Probes(t *testing.T) {
	ts := newTestServer(t, configured())
	ts.engine = SetupRouter(&handler.Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Guard:       configured(),
		ServiceName: "docflow-api",
		Probes: map[string]handler.Probe{
			"database": func(context.Context) error { return nil },
			"broker":   func(context.Context) error { return errors.New("not connected") },
		},
	}, staticVerifier{})

	w := ts.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, w, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"database": "up", "broker": "down"}, body.Checks)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		guard      *guard.Guard
		configured bool
		missing    []string
	}{
		{name: "configured", guard: configured(), configured: true},
		{name: "nothing set", guard: guard.New("", ""), missing: []string{guard.SettingURL, guard.SettingAccessKey}},
		{name: "key missing", guard: guard.New("https://project.example.co", " "), missing: []string{guard.SettingAccessKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.guard)

			w := ts.do(http.MethodGet, "/api/v1/status", "", nil, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp dto.StatusResponse
			decode(t, w, &resp)
			assert.Equal(t, tt.configured, resp.Configured)
			assert.Equal(t, tt.missing, resp.Missing)
			if !tt.configured {
				assert.NotEmpty(t, resp.Guidance)
			}
		})
	}
}

func TestAuthGates(t *testing.T) {
	tests := []struct {
		name       string
		guard      *guard.Guard
		path       string
		token      string
		wantStatus int
	}{
		{name: "unconfigured", guard: guard.New("", ""), path: "/api/v1/session", token: userToken, wantStatus: http.StatusServiceUnavailable},
		{name: "no token", guard: configured(), path: "/api/v1/session", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", guard: configured(), path: "/api/v1/session", token: "forged", wantStatus: http.StatusUnauthorized},
		{name: "user on admin route", guard: configured(), path: "/api/v1/admin/users", token: userToken, wantStatus: http.StatusForbidden},
		{name: "user session", guard: configured(), path: "/api/v1/session", token: userToken, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.guard)

			w := ts.do(http.MethodGet, tt.path, tt.token, nil, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestSession_Role(t *testing.T) {
	ts := newTestServer(t, configured())

	w := ts.do(http.MethodGet, "/api/v1/session", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SessionResponse
	decode(t, w, &resp)
	assert.Equal(t, "admin-1", resp.UserID)
	assert.Equal(t, string(session.RoleAdmin), resp.Role)
	assert.True(t, resp.IsAdmin)

	w = ts.do(http.MethodGet, "/api/v1/session", userToken, nil, "")
	decode(t, w, &resp)
	assert.Equal(t, string(session.RoleUser), resp.Role)
	assert.False(t, resp.IsAdmin)
}

func record(owner string) *document.Record {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &document.Record{
		ID:        docID,
		UserID:    owner,
		Kind:      document.KindOCR,
		Status:    document.StatusCompleted,
		DocxPath:  document.StringPtr(document.OutputPath(owner, docID, document.ExtDocx)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t, configured())
	next := &repository.Cursor{CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ID: docID}

	ts.documents.On("ListForOwner", mock.Anything, "user-1", repository.Page{Limit: 10}).
		Return([]document.Record{*record("user-1")}, next, nil).Once()

	w := ts.do(http.MethodGet, "/api/v1/documents?page_size=10", userToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListDocumentsResponse
	decode(t, w, &resp)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "OCR", resp.Documents[0].Action)
	assert.Equal(t, "completed", resp.Documents[0].Status)
	require.NotEmpty(t, resp.NextCursor)

	decoded, err := handler.DecodeCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, next.ID, decoded.ID)
	assert.True(t, next.CreatedAt.Equal(decoded.CreatedAt))

	w = ts.do(http.MethodGet, "/api/v1/documents?cursor=not-base64!", userToken, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		stored     *document.Record
		storeErr   error
		wantStatus int
	}{
		{name: "owner", token: userToken, stored: record("user-1"), wantStatus: http.StatusOK},
		{name: "someone else's", token: userToken, stored: record("user-2"), wantStatus: http.StatusNotFound},
		{name: "admin sees all", token: adminToken, stored: record("user-2"), wantStatus: http.StatusOK},
		{name: "missing", token: userToken, storeErr: document.ErrRecordNotFound, wantStatus: http.StatusNotFound},
		{
			name:       "backend failure",
			token:      userToken,
			storeErr:   document.NewPersistenceError("get document", errors.New("connection refused")),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, configured())
			ts.documents.On("Get", mock.Anything, docID).Return(tt.stored, tt.storeErr).Once()

			w := ts.do(http.MethodGet, "/api/v1/documents/"+docID, tt.token, nil, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, configured())
	seen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ts.documents.On("ListOwners", mock.Anything).
		Return([]repository.Owner{{UserID: "user-1", Documents: 3, FirstSeen: seen, LastSeen: seen}}, nil).Once()
	ts.documents.On("ListAll", mock.Anything, repository.Page{}).
		Return([]document.Record{*record("user-1"), *record("user-2")}, (*repository.Cursor)(nil), nil).Once()
	ts.documents.On("Delete", mock.Anything, docID).Return(nil).Once()
	ts.documents.On("Delete", mock.Anything, "missing").Return(document.ErrRecordNotFound).Once()

	w := ts.do(http.MethodGet, "/api/v1/admin/users", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var users dto.ListOwnersResponse
	decode(t, w, &users)
	require.Len(t, users.Users, 1)
	assert.Equal(t, 3, users.Users[0].Documents)

	w = ts.do(http.MethodGet, "/api/v1/admin/documents", adminToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var docs dto.ListDocumentsResponse
	decode(t, w, &docs)
	assert.Len(t, docs.Documents, 2)
	assert.Empty(t, docs.NextCursor)

	w = ts.do(http.MethodDelete, "/api/v1/admin/documents/"+docID, adminToken, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodDelete, "/api/v1/admin/documents/missing", adminToken, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func ocrForm(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile(handler.FieldFiles, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestConvertOCR(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunOCR", mock.Anything, mock.MatchedBy(func(in workflow.OCRInput) bool {
			return in.OwnerID == "user-1" &&
				len(in.Assets) == 1 && in.Assets[0].Name == "scan.png" &&
				in.Formats == document.OutputFormats{Docx: true, PDF: false}
		})).Return([]workflow.AssetOutcome{{
			FileName:   "scan.png",
			DocumentID: docID,
			Status:     document.StatusCompleted,
			Text:       processing.MockExtractedText,
			DocxURL:    processing.MockOCRDocxURL,
		}}, nil).Once()

		body, ct := ocrForm(t, map[string]string{"scan.png": "png-bytes"}, map[string]string{"docx": "true", "pdf": "false"})
		w := ts.do(http.MethodPost, "/api/v1/ocr", userToken, body, ct)

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.OCRResponse
		decode(t, w, &resp)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, processing.MockExtractedText, resp.Results[0].Text)
		assert.Empty(t, resp.Error)
	})

	t.Run("validation", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunOCR", mock.Anything, mock.Anything).Return(nil, workflow.ErrNoFormats).Once()

		body, ct := ocrForm(t, map[string]string{"scan.png": "png-bytes"}, nil)
		w := ts.do(http.MethodPost, "/api/v1/ocr", userToken, body, ct)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Please select at least one output format"}`, w.Body.String())
	})

	t.Run("partial failure keeps results", func(t *testing.T) {
		ts := newTestServer(t, configured())
		stepErr := &workflow.StepError{
			Kind: document.KindOCR, Step: workflow.StepProcess, Asset: "b.png",
			Err: &processing.ProcessingError{Operation: "ocr", Message: "engine crashed"},
		}
		ts.workflows.On("RunOCR", mock.Anything, mock.Anything).Return([]workflow.AssetOutcome{
			{FileName: "a.png", DocumentID: docID, Status: document.StatusCompleted},
			{FileName: "b.png", Status: document.StatusFailed, Err: stepErr},
		}, stepErr).Once()

		body, ct := ocrForm(t, map[string]string{"a.png": "a", "b.png": "b"}, map[string]string{"pdf": "on"})
		w := ts.do(http.MethodPost, "/api/v1/ocr", userToken, body, ct)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var resp dto.OCRResponse
		decode(t, w, &resp)
		assert.Equal(t, "Processing failed", resp.Error)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "Processing failed", resp.Results[1].Error)
	})

	t.Run("not multipart", func(t *testing.T) {
		ts := newTestServer(t, configured())

		w := ts.do(http.MethodPost, "/api/v1/ocr", userToken, strings.NewReader(`{}`), "application/json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGenerateDocument(t *testing.T) {
	t.Run("json prompt", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunDocGen", mock.Anything, workflow.DocGenInput{OwnerID: "user-1", Prompt: "Write a memo"}).
			Return(&workflow.DocGenOutcome{
				DocumentID: docID,
				Status:     document.StatusCompleted,
				Content:    processing.MockGenPrefix + "Write a memo",
				DocxPath:   document.OutputPath("user-1", docID, document.ExtDocx),
				PDFPath:    document.OutputPath("user-1", docID, document.ExtPDF),
			}, nil).Once()

		w := ts.do(http.MethodPost, "/api/v1/docgen", userToken, strings.NewReader(`{"prompt":"Write a memo"}`), "application/json")

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.DocGenResponse
		decode(t, w, &resp)
		assert.Equal(t, processing.MockGenPrefix+"Write a memo", resp.GeneratedContent)
		assert.Equal(t, "completed", resp.Status)
	})

	t.Run("multipart with attachment", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunDocGen", mock.Anything, mock.MatchedBy(func(in workflow.DocGenInput) bool {
			return in.Prompt == "Summarize" && in.Attachment != nil && in.Attachment.Name == "brief.pdf"
		})).Return(&workflow.DocGenOutcome{DocumentID: docID, Status: document.StatusCompleted}, nil).Once()

		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		require.NoError(t, mw.WriteField(handler.FieldPrompt, "Summarize"))
		part, err := mw.CreateFormFile(handler.FieldAttachment, "brief.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF"))
		require.NoError(t, mw.Close())

		w := ts.do(http.MethodPost, "/api/v1/docgen", userToken, body, mw.FormDataContentType())
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("empty prompt", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunDocGen", mock.Anything, mock.Anything).Return(nil, workflow.ErrEmptyPrompt).Once()

		w := ts.do(http.MethodPost, "/api/v1/docgen", userToken, strings.NewReader(`{"prompt":"  "}`), "application/json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Please enter a prompt"}`, w.Body.String())
	})

	t.Run("generation failure", func(t *testing.T) {
		ts := newTestServer(t, configured())
		ts.workflows.On("RunDocGen", mock.Anything, mock.Anything).Return(nil, &workflow.StepError{
			Kind: document.KindDocGen, Step: workflow.StepProcess,
			Err: &processing.ProcessingError{Operation: "docgen", StatusCode: 500},
		}).Once()

		w := ts.do(http.MethodPost, "/api/v1/docgen", userToken, strings.NewReader(`{"prompt":"x"}`), "application/json")

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"error":"Generation failed"}`, w.Body.String())
	})
}
