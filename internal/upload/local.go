package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket stores objects as files below basePath/name
type LocalBucket struct {
	name string
	root string
}

// NewLocalBucket creates the bucket directory if needed
func NewLocalBucket(basePath, name string) (*LocalBucket, error) {
	root := filepath.Join(basePath, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &LocalBucket{name: name, root: root}, nil
}

func (b *LocalBucket) Name() string { return b.name }

// Put writes body to a new file. Existing objects are never overwritten.
func (b *LocalBucket) Put(ctx context.Context, objectPath string, body io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := b.resolve(objectPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrObjectExists
		}
		return fmt.Errorf("failed to create object: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return fmt.Errorf("failed to write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("failed to finalize object: %w", err)
	}

	return nil
}

// Open returns the stored object for reading
func (b *LocalBucket) Open(objectPath string) (*os.File, error) {
	target, err := b.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	return os.Open(target)
}

func (b *LocalBucket) resolve(objectPath string) (string, error) {
	target := filepath.Join(b.root, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(b.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path %q escapes the bucket", ErrInvalidFile, objectPath)
	}
	return target, nil
}
