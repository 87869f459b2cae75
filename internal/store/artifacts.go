// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactSink persists retrieved bytes under a caller-supplied key. The
// fetch engine does not assume a filesystem versus object-store backend.
type ArtifactSink interface {
	// Put writes the bytes for key and returns an opaque storage ref.
	Put(key string, r io.Reader) (ref string, err error)
}

// FSArtifactSink stores artifacts as files under a base directory.
type FSArtifactSink struct {
	dir string
}

// NewFSArtifactSink returns a filesystem-backed sink rooted at dir.
func NewFSArtifactSink(dir string) *FSArtifactSink {
	return &FSArtifactSink{dir: dir}
}

// Put writes to a temp file first and renames on success, so a partial
// write never occupies the final key.
func (f *FSArtifactSink) Put(key string, r io.Reader) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifacts directory: %w", err)
	}
	destPath := filepath.Join(f.dir, key)

	tmpFile, err := os.CreateTemp(f.dir, ".artifact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing artifact: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return destPath, nil
}
