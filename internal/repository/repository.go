// Package repository persists Job Records in PostgreSQL. Every operation
// checks the credential guard before touching the database; authorization
// is left to callers.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/guard"
)

const (
	// DefaultPageSize is used when a page has no limit
	DefaultPageSize = 50
	// MaxPageSize caps a single page
	MaxPageSize = 200
)

const recordColumns = `
	id, user_id, action, created_at, updated_at, prompt,
	ocr_image_path, docx_path, pdf_path, status, metadata`

// Cursor marks the last record of a page in newest-first order
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Page selects a window of a listing
type Page struct {
	Limit  int
	Cursor *Cursor
}

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageSize
	case p.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return p.Limit
	}
}

// Owner summarizes the records of one user
type Owner struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Documents int       `db:"documents" json:"documents"`
	FirstSeen time.Time `db:"first_seen" json:"first_seen"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
}

// Repository handles all database operations on documents
type Repository struct {
	db     *sqlx.DB
	guard  *guard.Guard
	logger *slog.Logger
}

// NewRepository creates a new Repository instance
func NewRepository(db *sqlx.DB, g *guard.Guard, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		guard:  g,
		logger: logger,
	}
}

// Create inserts a record in processing status. The id is generated by the database.
func (r *Repository) Create(ctx context.Context, in document.NewRecord) (*document.Record, error) {
	if err := r.guard.Check(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO documents (user_id, action, prompt, ocr_image_path, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING` + recordColumns

	var rec document.Record
	err := r.db.GetContext(ctx, &rec, query,
		in.OwnerID,
		in.Kind,
		document.StringPtr(in.Prompt),
		document.StringPtr(in.SourcePath),
		document.StatusProcessing,
	)
	if err != nil {
		return nil, document.NewPersistenceError("create document", err)
	}

	r.logger.Debug("Document created",
		slog.String("document_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("action", string(rec.Kind)),
	)

	return &rec, nil
}

// Get retrieves a record by id
func (r *Repository) Get(ctx context.Context, id string) (*document.Record, error) {
	if err := r.guard.Check(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, document.ErrRecordNotFound
	}

	query := `SELECT` + recordColumns + ` FROM documents WHERE id = $1`

	var rec document.Record
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrRecordNotFound
		}
		return nil, document.NewPersistenceError("get document", err)
	}

	return &rec, nil
}

// Update applies the terminal patch. Only records still in processing are
// touched; otherwise ErrRecordNotFound or ErrInvalidTransition is returned.
func (r *Repository) Update(ctx context.Context, id string, patch document.Patch) (*document.Record, error) {
	if err := r.guard.Check(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, document.ErrRecordNotFound
	}

	query := `
		UPDATE documents
		SET status = $1,
		    docx_path = $2,
		    pdf_path = $3,
		    metadata = metadata || $4::jsonb,
		    updated_at = NOW()
		WHERE id = $5
		  AND status = $6
		RETURNING` + recordColumns

	var rec document.Record
	err := r.db.GetContext(ctx, &rec, query,
		patch.Status,
		document.StringPtr(patch.DocxPath),
		document.StringPtr(patch.PDFPath),
		patch.Metadata,
		id,
		document.StatusProcessing,
	)
	if err == nil {
		r.logger.Debug("Document updated",
			slog.String("document_id", id),
			slog.String("status", string(rec.Status)),
		)
		return &rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, document.NewPersistenceError("update document", err)
	}

	var current document.Status
	err = r.db.GetContext(ctx, &current, `SELECT status FROM documents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrRecordNotFound
		}
		return nil, document.NewPersistenceError("update document", err)
	}

	r.logger.Warn("Document update rejected",
		slog.String("document_id", id),
		slog.String("current_status", string(current)),
		slog.String("requested_status", string(patch.Status)),
	)
	return nil, fmt.Errorf("%w: %s -> %s", document.ErrInvalidTransition, current, patch.Status)
}

// ListForOwner returns the owner's records, newest first
func (r *Repository) ListForOwner(ctx context.Context, ownerID string, page Page) ([]document.Record, *Cursor, error) {
	if err := r.guard.Check(); err != nil {
		return nil, nil, err
	}
	if ownerID == "" {
		return nil, nil, fmt.Errorf("%w: owner is required", document.ErrInvalidPatch)
	}
	return r.list(ctx, ownerID, page)
}

// ListAll returns every record, newest first. Callers must restrict it to administrators.
func (r *Repository) ListAll(ctx context.Context, page Page) ([]document.Record, *Cursor, error) {
	if err := r.guard.Check(); err != nil {
		return nil, nil, err
	}
	return r.list(ctx, "", page)
}

func (r *Repository) list(ctx context.Context, ownerID string, page Page) ([]document.Record, *Cursor, error) {
	query := `SELECT` + recordColumns + ` FROM documents WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if ownerID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, ownerID)
		argIdx++
	}

	if page.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, page.Cursor.CreatedAt, page.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	// one extra row tells whether another page exists
	limit := page.limit()
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit+1)

	records := []document.Record{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, nil, document.NewPersistenceError("list documents", err)
	}

	if len(records) <= limit {
		return records, nil, nil
	}

	records = records[:limit]
	last := records[limit-1]
	return records, &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}

// Delete removes a record. Stored assets are left in place.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.guard.Check(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return document.ErrRecordNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return document.NewPersistenceError("delete document", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return document.NewPersistenceError("delete document", err)
	}
	if rows == 0 {
		return document.ErrRecordNotFound
	}

	r.logger.Info("Document deleted", slog.String("document_id", id))
	return nil
}

// ListOwners returns one summary per user that owns records, most recently active first
func (r *Repository) ListOwners(ctx context.Context) ([]Owner, error) {
	if err := r.guard.Check(); err != nil {
		return nil, err
	}

	query := `
		SELECT user_id,
		       COUNT(*)        AS documents,
		       MIN(created_at) AS first_seen,
		       MAX(created_at) AS last_seen
		FROM documents
		GROUP BY user_id
		ORDER BY last_seen DESC, user_id
	`

	owners := []Owner{}
	if err := r.db.SelectContext(ctx, &owners, query); err != nil {
		return nil, document.NewPersistenceError("list document owners", err)
	}
	return owners, nil
}

// FailStale moves records stuck in processing since before cutoff to failed
// and returns their ids.
func (r *Repository) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	if err := r.guard.Check(); err != nil {
		return nil, err
	}

	query := `
		UPDATE documents
		SET status = $1,
		    metadata = metadata || jsonb_build_object('error', $2::text),
		    updated_at = NOW()
		WHERE status = $3
		  AND created_at < $4
		RETURNING id
	`

	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, query,
		document.StatusFailed,
		reason,
		document.StatusProcessing,
		cutoff,
	)
	if err != nil {
		return nil, document.NewPersistenceError("fail stale documents", err)
	}

	if len(ids) > 0 {
		r.logger.Warn("Stale documents failed",
			slog.Int("count", len(ids)),
			slog.Time("cutoff", cutoff),
		)
	}

	return ids, nil
}
