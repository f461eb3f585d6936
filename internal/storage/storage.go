// Package storage abstracts where uploaded resource files live: a local
// upload directory by default, or a GCS bucket when configured.
package storage

import (
	"context"
	"io"
)

type BlobStore interface {
	// Save writes the blob under key, overwriting any existing object.
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PublicURL returns the URL under which the blob is served.
	PublicURL(key string) string
}
