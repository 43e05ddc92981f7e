package dto

import (
	"time"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/repository"
	"github.com/cuongbtq/docflow/internal/workflow"
)

type ListDocumentsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListDocumentsResponse struct {
	Documents  []DocumentDTO `json:"documents"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type DocumentDTO struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Action     string            `json:"action"`
	Status     string            `json:"status"`
	Prompt     string            `json:"prompt,omitempty"`
	SourcePath string            `json:"ocr_image_path,omitempty"`
	DocxPath   string            `json:"docx_path,omitempty"`
	PDFPath    string            `json:"pdf_path,omitempty"`
	Metadata   document.Metadata `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

func FromRecord(r document.Record) DocumentDTO {
	return DocumentDTO{
		ID:         r.ID,
		UserID:     r.UserID,
		Action:     string(r.Kind),
		Status:     string(r.Status),
		Prompt:     document.Deref(r.Prompt),
		SourcePath: document.Deref(r.SourcePath),
		DocxPath:   document.Deref(r.DocxPath),
		PDFPath:    document.Deref(r.PDFPath),
		Metadata:   r.Metadata,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func FromRecords(records []document.Record) []DocumentDTO {
	out := make([]DocumentDTO, 0, len(records))
	for _, r := range records {
		out = append(out, FromRecord(r))
	}
	return out
}

type OwnerDTO struct {
	UserID    string `json:"user_id"`
	Documents int    `json:"documents"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

type ListOwnersResponse struct {
	Users []OwnerDTO `json:"users"`
}

func FromOwners(owners []repository.Owner) []OwnerDTO {
	out := make([]OwnerDTO, 0, len(owners))
	for _, o := range owners {
		out = append(out, OwnerDTO{
			UserID:    o.UserID,
			Documents: o.Documents,
			FirstSeen: o.FirstSeen.UTC().Format(time.RFC3339),
			LastSeen:  o.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type StatusResponse struct {
	Configured bool     `json:"configured"`
	Missing    []string `json:"missing,omitempty"`
	Guidance   string   `json:"guidance,omitempty"`
}

type SessionResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsAdmin   bool   `json:"is_admin"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type DocGenRequest struct {
	Prompt string `json:"prompt" form:"prompt"`
}

type AssetResultDTO struct {
	FileName   string `json:"file_name"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
	Text       string `json:"extracted_text,omitempty"`
	DocxPath   string `json:"docx_path,omitempty"`
	PDFPath    string `json:"pdf_path,omitempty"`
	DocxURL    string `json:"docx_url,omitempty"`
	PDFURL     string `json:"pdf_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type OCRResponse struct {
	Results []AssetResultDTO `json:"results"`
	Error   string           `json:"error,omitempty"`
}

func FromOutcomes(outcomes []workflow.AssetOutcome) []AssetResultDTO {
	out := make([]AssetResultDTO, 0, len(outcomes))
	for _, o := range outcomes {
		r := AssetResultDTO{
			FileName:   o.FileName,
			DocumentID: o.DocumentID,
			Status:     string(o.Status),
			SourcePath: o.SourcePath,
			Text:       o.Text,
			DocxPath:   o.DocxPath,
			PDFPath:    o.PDFPath,
			DocxURL:    o.DocxURL,
			PDFURL:     o.PDFURL,
		}
		if o.Err != nil {
			r.Error = workflow.Message(o.Err)
		}
		out = append(out, r)
	}
	return out
}

type DocGenResponse struct {
	DocumentID       string `json:"document_id"`
	Status           string `json:"status"`
	GeneratedContent string `json:"generated_content"`
	AttachmentPath   string `json:"attachment_path,omitempty"`
	DocxPath         string `json:"docx_path"`
	PDFPath          string `json:"pdf_path"`
	DocxURL          string `json:"docx_url,omitempty"`
	PDFURL           string `json:"pdf_url,omitempty"`
}

func FromDocGen(o *workflow.DocGenOutcome) DocGenResponse {
	return DocGenResponse{
		DocumentID:       o.DocumentID,
		Status:           string(o.Status),
		GeneratedContent: o.Content,
		AttachmentPath:   o.AttachmentPath,
		DocxPath:         o.DocxPath,
		PDFPath:          o.PDFPath,
		DocxURL:          o.DocxURL,
		PDFURL:           o.PDFURL,
	}
}
