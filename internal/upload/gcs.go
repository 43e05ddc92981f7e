package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSBucket stores objects in a Cloud Storage bucket
type GCSBucket struct {
	handle *storage.BucketHandle
	name   string
}

// NewGCSBucket wraps the named bucket of client
func NewGCSBucket(client *storage.Client, name string) *GCSBucket {
	return &GCSBucket{handle: client.Bucket(name), name: name}
}

func (b *GCSBucket) Name() string { return b.name }

// Put writes the object only if it does not exist yet.
func (b *GCSBucket) Put(ctx context.Context, objectPath string, body io.Reader, contentType string) error {
	writer := b.handle.Object(objectPath).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, body); err != nil {
		_ = writer.Close()
		return gcsError("write", err)
	}

	if err := writer.Close(); err != nil {
		return gcsError("finalize", err)
	}
	return nil
}

func gcsError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return fmt.Errorf("failed to %s GCS object: %w", op, err)
}
