package postgres

import (
	"context"
	"fmt"

	"github.com/plantwatch/plantdata-api/internal/platform/logger"
	"github.com/plantwatch/plantdata-api/internal/store"
)

// PostgresDataFileStore implements the store.DataFileStore interface
// using a PostgreSQL database as the storage backend.
type PostgresDataFileStore struct {
	db store.DBTX
}

// NewPostgresDataFileStore creates a new PostgreSQL implementation of the
// DataFileStore interface.
func NewPostgresDataFileStore(db store.DBTX) *PostgresDataFileStore {
	return &PostgresDataFileStore{db: db}
}

// Ensure PostgresDataFileStore implements store.DataFileStore interface
var _ store.DataFileStore = (*PostgresDataFileStore)(nil)

// ResolveFiles implements store.DataFileStore.ResolveFiles.
// The result preserves the order of the input IDs; unknown IDs are omitted.
func (s *PostgresDataFileStore) ResolveFiles(ctx context.Context, ids []int64) ([]store.DataFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	log := logger.FromContext(ctx)

	query := `
		SELECT id, file_name, file_path, content_type, size_bytes, uploaded_by, created_at
		FROM data_files
		WHERE id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, ids)
	if err != nil {
		log.Error("failed to resolve data files", "error", err, "id_count", len(ids))
		return nil, fmt.Errorf("failed to resolve data files: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close rows", "error", cerr)
		}
	}()

	byID := make(map[int64]store.DataFile, len(ids))
	for rows.Next() {
		var f store.DataFile
		if err := rows.Scan(
			&f.ID,
			&f.FileName,
			&f.FilePath,
			&f.ContentType,
			&f.SizeBytes,
			&f.UploadedBy,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan data file row: %w", MapError(err))
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate data file rows: %w", MapError(err))
	}

	// Reassemble in input order, dropping IDs that did not resolve and
	// collapsing duplicates in the request.
	files := make([]store.DataFile, 0, len(byID))
	seen := make(map[int64]bool, len(byID))
	for _, id := range ids {
		if f, ok := byID[id]; ok && !seen[id] {
			files = append(files, f)
			seen[id] = true
		}
	}

	return files, nil
}
