// Package client calls the docflow API on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuongbtq/docflow/internal/api/dto"
	"github.com/cuongbtq/docflow/internal/api/handler"
	"github.com/cuongbtq/docflow/internal/document"
)

// DefaultTimeout covers multi-asset OCR requests
const DefaultTimeout = 5 * time.Minute

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// ErrNotSignedIn is returned by calls that need an access token
var ErrNotSignedIn = errors.New("not signed in")

// Client is an HTTP client for the docflow API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client. token may be empty for public endpoints.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
	}
}

// Status returns the configuration state of the API
func (c *Client) Status(ctx context.Context) (*dto.StatusResponse, error) {
	var out dto.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns the caller's identity and role as seen by the API
func (c *Client) Session(ctx context.Context) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	if err := c.authed(ctx, http.MethodGet, "/api/v1/session", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OCR uploads the files at paths and converts them to the requested formats.
// A partial failure returns the results together with an *APIError.
func (c *Client) OCR(ctx context.Context, paths []string, formats document.OutputFormats) (*dto.OCRResponse, error) {
	body, contentType, err := multipartBody(
		map[string]string{
			handler.FieldDocx: strconv.FormatBool(formats.Docx),
			handler.FieldPDF:  strconv.FormatBool(formats.PDF),
		},
		handler.FieldFiles, paths,
	)
	if err != nil {
		return nil, err
	}

	var out dto.OCRResponse
	err = c.authed(ctx, http.MethodPost, "/api/v1/ocr", body, contentType, &out)
	var apiErr *APIError
	if err != nil && !(errors.As(err, &apiErr) && len(out.Results) > 0) {
		return nil, err
	}
	return &out, err
}

// DocGen generates a document from prompt, with an optional attachment file
func (c *Client) DocGen(ctx context.Context, prompt, attachmentPath string) (*dto.DocGenResponse, error) {
	var (
		body        io.Reader
		contentType string
	)
	if attachmentPath != "" {
		b, ct, err := multipartBody(map[string]string{handler.FieldPrompt: prompt}, handler.FieldAttachment, []string{attachmentPath})
		if err != nil {
			return nil, err
		}
		body, contentType = b, ct
	} else {
		b, err := json.Marshal(dto.DocGenRequest{Prompt: prompt})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	}

	var out dto.DocGenResponse
	if err := c.authed(ctx, http.MethodPost, "/api/v1/docgen", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments lists the caller's documents
func (c *Client) ListDocuments(ctx context.Context, pageSize int, cursor string) (*dto.ListDocumentsResponse, error) {
	return c.listDocuments(ctx, "/api/v1/documents", pageSize, cursor)
}

// GetDocument fetches one document
func (c *Client) GetDocument(ctx context.Context, id string) (*dto.DocumentDTO, error) {
	var out dto.DocumentDTO
	if err := c.authed(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminDocuments lists every document
func (c *Client) AdminDocuments(ctx context.Context, pageSize int, cursor string) (*dto.ListDocumentsResponse, error) {
	return c.listDocuments(ctx, "/api/v1/admin/documents", pageSize, cursor)
}

// AdminUsers lists the owners of documents
func (c *Client) AdminUsers(ctx context.Context) (*dto.ListOwnersResponse, error) {
	var out dto.ListOwnersResponse
	if err := c.authed(ctx, http.MethodGet, "/api/v1/admin/users", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument removes a document
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.authed(ctx, http.MethodDelete, "/api/v1/admin/documents/"+url.PathEscape(id), nil, "", nil)
}

func (c *Client) listDocuments(ctx context.Context, path string, pageSize int, cursor string) (*dto.ListDocumentsResponse, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out dto.ListDocumentsResponse
	if err := c.authed(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authed(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	if c.token == "" {
		return ErrNotSignedIn
	}
	return c.do(ctx, method, path, body, contentType, result)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp, result)
}

func handleResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return nil
}

func multipartBody(fields map[string]string, fileField string, paths []string) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, p := range paths {
		if err := addFile(mw, fileField, p); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func addFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}
