package document

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// Kind identifies the processing variant of a record
type Kind string

const (
	KindOCR    Kind = "OCR"
	KindDocGen Kind = "DOCGEN"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindOCR || k == KindDocGen
}

// Status is the lifecycle state of a record
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo allows only processing -> completed|failed
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusProcessing && next.Terminal()
}

// Output file extensions
const (
	ExtDocx = "docx"
	ExtPDF  = "pdf"
)

// Record is one persisted OCR or document-generation job
type Record struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Kind       Kind      `db:"action" json:"action"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	Prompt     *string   `db:"prompt" json:"prompt,omitempty"`
	SourcePath *string   `db:"ocr_image_path" json:"ocr_image_path,omitempty"`
	DocxPath   *string   `db:"docx_path" json:"docx_path,omitempty"`
	PDFPath    *string   `db:"pdf_path" json:"pdf_path,omitempty"`
	Status     Status    `db:"status" json:"status"`
	Metadata   Metadata  `db:"metadata" json:"metadata"`
}

// NewRecord holds the creation parameters of a record
type NewRecord struct {
	OwnerID    string
	Kind       Kind
	Prompt     string
	SourcePath string
}

// Validate checks the creation parameters
func (n NewRecord) Validate() error {
	if n.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidPatch)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPatch, n.Kind)
	}
	return nil
}

// Patch is the single allowed mutation of a record: a terminal status plus
// output paths on completion.
type Patch struct {
	Status   Status
	DocxPath string
	PDFPath  string
	Metadata Metadata
}

// Validate enforces that the status is terminal and output paths
// only accompany completion.
func (p Patch) Validate() error {
	if !p.Status.Terminal() {
		return fmt.Errorf("%w: status %q is not terminal", ErrInvalidPatch, p.Status)
	}
	if p.Status != StatusCompleted && (p.DocxPath != "" || p.PDFPath != "") {
		return fmt.Errorf("%w: output paths require status %q", ErrInvalidPatch, StatusCompleted)
	}
	return nil
}

// Failed builds the patch that moves a record to failed with a reason
func Failed(reason string) Patch {
	p := Patch{Status: StatusFailed}
	if reason != "" {
		p.Metadata = Metadata{"error": reason}
	}
	return p
}

// OutputFormats is the set of requested output documents
type OutputFormats struct {
	Docx bool `json:"docx"`
	PDF  bool `json:"pdf"`
}

// Any reports whether at least one format is requested
func (f OutputFormats) Any() bool {
	return f.Docx || f.PDF
}

// OutputPath returns documents/{owner}/{id}.{ext}
func OutputPath(ownerID, recordID, ext string) string {
	return path.Join("documents", ownerID, recordID+"."+ext)
}

// Metadata is free-form JSON stored in a jsonb column
type Metadata map[string]any

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}

	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	*m = out
	return nil
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
