// Package upload stores user assets under owner-scoped paths.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/docflow/internal/guard"
)

var (
	// ErrUpload matches every *UploadError
	ErrUpload = errors.New("upload failed")

	// ErrInvalidFile is returned before any storage call for unusable input
	ErrInvalidFile = errors.New("invalid file")

	// ErrObjectExists is returned by buckets that refuse to overwrite
	ErrObjectExists = errors.New("object already exists")
)

// UploadError wraps a storage backend failure
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUpload) true
func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

// File is a single asset to upload
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Bucket is a path-addressed object store
type Bucket interface {
	Put(ctx context.Context, objectPath string, body io.Reader, contentType string) error
	Name() string
}

// Gateway uploads assets through a Bucket
type Gateway struct {
	bucket Bucket
	guard  *guard.Guard
	logger *slog.Logger
	now    func() time.Time
}

// NewGateway creates a new Gateway
func NewGateway(bucket Bucket, g *guard.Guard, logger *slog.Logger) *Gateway {
	return &Gateway{
		bucket: bucket,
		guard:  g,
		logger: logger,
		now:    time.Now,
	}
}

// Upload stores f under {ownerID}/{unixMillis}_{name} and returns that path.
// Failures are not retried.
func (g *Gateway) Upload(ctx context.Context, ownerID string, f File) (string, error) {
	if err := g.guard.Check(); err != nil {
		return "", err
	}

	name := baseName(f.Name)
	switch {
	case ownerID == "":
		return "", fmt.Errorf("%w: owner is required", ErrInvalidFile)
	case name == "":
		return "", fmt.Errorf("%w: file name is required", ErrInvalidFile)
	case f.Body == nil:
		return "", fmt.Errorf("%w: %s has no content", ErrInvalidFile, name)
	}

	objectPath := ObjectPath(ownerID, name, g.now())

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := g.bucket.Put(ctx, objectPath, f.Body, contentType); err != nil {
		g.logger.Error("Failed to upload asset",
			slog.String("bucket", g.bucket.Name()),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return "", &UploadError{Path: objectPath, Err: err}
	}

	g.logger.Info("Asset uploaded",
		slog.String("bucket", g.bucket.Name()),
		slog.String("path", objectPath),
		slog.Int64("size", f.Size),
	)

	return objectPath, nil
}

// ObjectPath builds the storage path of an upload made at t
func ObjectPath(ownerID, fileName string, t time.Time) string {
	return fmt.Sprintf("%s/%d_%s", ownerID, t.UnixMilli(), fileName)
}

// baseName strips any directory part a client may have sent
func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
