package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DataFile is the stored metadata for one uploaded facility data file.
type DataFile struct {
	ID          int64
	FileName    string
	FilePath    string
	ContentType string
	SizeBytes   int64
	UploadedBy  uuid.UUID
	CreatedAt   time.Time
}

// DataFileStore resolves data-file identifiers to on-disk locations.
// It is the record-store collaborator of the download pipeline.
type DataFileStore interface {
	// ResolveFiles maps the given IDs to file metadata, preserving input
	// order. Unknown IDs are omitted from the result rather than reported
	// as an error.
	ResolveFiles(ctx context.Context, ids []int64) ([]DataFile, error)
}
