package download

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/plantwatch/plantdata-api/internal/store"
)

// BuildArchive streams the given files into a single zip archive, preserving
// input order. Files whose backing path no longer exists are skipped rather
// than treated as an error; any other I/O failure aborts the build.
//
// Callers relying on the skip policy should surface it to their own callers:
// an archive may legitimately contain fewer entries than were requested.
func BuildArchive(files []store.DataFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		if err := addFile(zw, f); err != nil {
			// Close to release resources; the archive is discarded anyway.
			_ = zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// addFile copies one file into the archive, skipping missing paths.
func addFile(zw *zip.Writer, f store.DataFile) error {
	in, err := os.Open(f.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", f.FilePath, err)
	}
	defer func() { _ = in.Close() }()

	name := f.FileName
	if name == "" {
		name = filepath.Base(f.FilePath)
	}

	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}

	return nil
}
