package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/document"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, dto.StatusResponse{Configured: false, Missing: []string{"url"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "", nil)
	got, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Configured)
	assert.Equal(t, []string{"url"}, got.Missing)
}

func TestClient_RequiresToken(t *testing.T) {
	c := New("http://127.0.0.1:1", "", nil)

	_, err := c.Session(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)

	err = c.DeleteDocument(context.Background(), "id")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestClient_ErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "error body", status: http.StatusForbidden, body: `{"error":"Admin access required"}`, wantMsg: "Admin access required"},
		{name: "empty body", status: http.StatusBadGateway, body: ``, wantMsg: "Bad Gateway"},
		{name: "non json body", status: http.StatusInternalServerError, body: `oops`, wantMsg: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "tok", nil).AdminUsers(context.Background())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestClient_ListDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		writeJSON(w, http.StatusOK, dto.ListDocumentsResponse{
			Documents:  []dto.DocumentDTO{{ID: "d1", Action: "OCR", Status: "completed"}},
			NextCursor: "next",
		})
	}))
	defer srv.Close()

	got, err := New(srv.URL, "tok", nil).ListDocuments(context.Background(), 10, "abc")
	require.NoError(t, err)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "d1", got.Documents[0].ID)
	assert.Equal(t, "next", got.NextCursor)
}

func TestClient_DeleteDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/admin/documents/d1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "tok", nil).DeleteDocument(context.Background(), "d1"))
}

func TestClient_OCR(t *testing.T) {
	dir := t.TempDir()
	scan := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(scan, []byte("png-bytes"), 0o600))

	t.Run("uploads files and flags", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "true", r.FormValue("docx"))
			assert.Equal(t, "false", r.FormValue("pdf"))
			files := r.MultipartForm.File["files"]
			require.Len(t, files, 1)
			assert.Equal(t, "scan.png", files[0].Filename)

			writeJSON(w, http.StatusOK, dto.OCRResponse{
				Results: []dto.AssetResultDTO{{FileName: "scan.png", Status: "completed"}},
			})
		}))
		defer srv.Close()

		got, err := New(srv.URL, "tok", nil).OCR(context.Background(), []string{scan}, document.OutputFormats{Docx: true})
		require.NoError(t, err)
		require.Len(t, got.Results, 1)
		assert.Equal(t, "completed", got.Results[0].Status)
	})

	t.Run("partial failure keeps results", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadGateway, dto.OCRResponse{
				Results: []dto.AssetResultDTO{{FileName: "scan.png", Status: "failed", Error: "Processing failed"}},
				Error:   "Processing failed",
			})
		}))
		defer srv.Close()

		got, err := New(srv.URL, "tok", nil).OCR(context.Background(), []string{scan}, document.OutputFormats{PDF: true})
		require.Error(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "failed", got.Results[0].Status)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New("http://127.0.0.1:1", "tok", nil).OCR(context.Background(), []string{filepath.Join(dir, "nope.png")}, document.OutputFormats{PDF: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open")
	})
}

func TestClient_DocGen(t *testing.T) {
	t.Run("json body without attachment", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var req dto.DocGenRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "write a memo", req.Prompt)
			writeJSON(w, http.StatusOK, dto.DocGenResponse{DocumentID: "d1", Status: "completed"})
		}))
		defer srv.Close()

		got, err := New(srv.URL, "tok", nil).DocGen(context.Background(), "write a memo", "")
		require.NoError(t, err)
		assert.Equal(t, "d1", got.DocumentID)
	})

	t.Run("multipart with attachment", func(t *testing.T) {
		att := filepath.Join(t.TempDir(), "ref.pdf")
		require.NoError(t, os.WriteFile(att, []byte("%PDF"), 0o600))

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "summarize", r.FormValue("prompt"))
			require.Len(t, r.MultipartForm.File["attachment"], 1)
			writeJSON(w, http.StatusOK, dto.DocGenResponse{DocumentID: "d2", AttachmentPath: "u/1_ref.pdf"})
		}))
		defer srv.Close()

		got, err := New(srv.URL, "tok", nil).DocGen(context.Background(), "summarize", att)
		require.NoError(t, err)
		assert.Equal(t, "u/1_ref.pdf", got.AttachmentPath)
	})
}

func TestOutputTo(t *testing.T) {
	data := dto.SessionResponse{UserID: "u1", Email: "a@b.co", Role: "user"}

	tests := []struct {
		name   string
		format OutputFormat
		want   string
	}{
		{name: "json", format: OutputFormatJSON, want: "\"user_id\": \"u1\""},
		{name: "yaml keeps json names", format: OutputFormatYAML, want: "user_id: u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, OutputTo(&buf, tt.format, data))
			assert.Contains(t, buf.String(), tt.want)
		})
	}

	assert.Equal(t, OutputFormatJSON, ParseOutputFormat("json"))
	assert.Equal(t, OutputFormatYAML, ParseOutputFormat("anything"))
}
