// Package blob abstracts material file storage behind a small contract so
// the content tree does not care whether bytes land on local disk or in an
// S3-compatible object store.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the object does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store persists opaque material payloads under caller-chosen keys.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
