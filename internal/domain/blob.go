package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage. PutMultipart streams large
// payloads in parts; the part size is the implementation's concern.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged rows from the database to cold storage before
// the retention policy drops them.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}
