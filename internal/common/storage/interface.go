package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations the judge service needs.
type ObjectStorage interface {
	// GetObject opens a reader for an object. Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
}
