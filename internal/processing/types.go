// Package processing invokes the OCR and document-generation functions.
package processing

import (
	"context"

	"github.com/cuongbtq/docflow/internal/document"
)

// OCRRequest is the body of the OCR endpoint
type OCRRequest struct {
	ImagePath string                 `json:"imagePath"`
	Formats   document.OutputFormats `json:"formats"`
}

// OCRResponse is the success body of the OCR endpoint
type OCRResponse struct {
	Success       bool    `json:"success"`
	ExtractedText string  `json:"extractedText,omitempty"`
	DocxURL       *string `json:"docxUrl"`
	PDFURL        *string `json:"pdfUrl"`
}

// DocGenRequest is the body of the document-generation endpoint
type DocGenRequest struct {
	Prompt         string `json:"prompt"`
	AttachmentPath string `json:"attachmentPath,omitempty"`
}

// DocGenResponse is the success body of the document-generation endpoint
type DocGenResponse struct {
	Success          bool   `json:"success"`
	GeneratedContent string `json:"generatedContent,omitempty"`
	DocxURL          string `json:"docxUrl,omitempty"`
	PDFURL           string `json:"pdfUrl,omitempty"`
}

// ErrorResponse is returned by both endpoints with a non-200 status
type ErrorResponse struct {
	Error string `json:"error"`
}

// Result is the outcome of one processing call
type Result struct {
	Text    string `json:"text,omitempty"`
	DocxURL string `json:"docx_url,omitempty"`
	PDFURL  string `json:"pdf_url,omitempty"`
}

// Processor runs the external processing steps
type Processor interface {
	OCR(ctx context.Context, sourcePath string, formats document.OutputFormats) (*Result, error)
	Generate(ctx context.Context, prompt, attachmentPath string) (*Result, error)
}

// Mock outputs returned by the placeholder functions
const (
	MockExtractedText = "This is mock extracted text from the image."
	MockOCRDocxURL    = "https://example.com/mock.docx"
	MockOCRPDFURL     = "https://example.com/mock.pdf"
	MockGenDocxURL    = "https://example.com/generated.docx"
	MockGenPDFURL     = "https://example.com/generated.pdf"
	MockGenPrefix     = "Mock generated document based on: "
)

// MockOCR builds the placeholder OCR response
func MockOCR(formats document.OutputFormats) OCRResponse {
	resp := OCRResponse{Success: true, ExtractedText: MockExtractedText}
	if formats.Docx {
		u := MockOCRDocxURL
		resp.DocxURL = &u
	}
	if formats.PDF {
		u := MockOCRPDFURL
		resp.PDFURL = &u
	}
	return resp
}

// MockDocGen builds the placeholder document-generation response
func MockDocGen(prompt string) DocGenResponse {
	return DocGenResponse{
		Success:          true,
		GeneratedContent: MockGenPrefix + prompt,
		DocxURL:          MockGenDocxURL,
		PDFURL:           MockGenPDFURL,
	}
}
