// Package storage keeps uploaded import files for the life of a run.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("stored file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	RunID       uuid.UUID `json:"run_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // relative to the storage root
	CreatedAt   time.Time `json:"created_at"`
}

// Storage holds one source file per import run.
type Storage interface {
	// Upload stores the file of a run, replacing any previous one.
	Upload(ctx context.Context, runID uuid.UUID, filename, contentType string, r io.Reader) (*FileInfo, error)

	// Download opens the file of a run.
	Download(ctx context.Context, runID uuid.UUID) (io.ReadCloser, *FileInfo, error)

	// Delete removes the file of a run. Deleting a missing file is not an
	// error.
	Delete(ctx context.Context, runID uuid.UUID) error

	// List returns every stored file.
	List(ctx context.Context) ([]*FileInfo, error)
}

// Config holds storage configuration
type Config struct {
	LocalPath string
}

// New creates the local filesystem storage.
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
