package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStorage implements Storage using the local filesystem. Each run
// gets a directory named after its id holding the file and a meta.json.
type LocalStorage struct {
	basePath string
	now      func() time.Time
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, now: time.Now}, nil
}

func (s *LocalStorage) runDir(runID uuid.UUID) string {
	return filepath.Join(s.basePath, runID.String())
}

// Upload stores a file and returns its metadata
func (s *LocalStorage) Upload(ctx context.Context, runID uuid.UUID, filename, contentType string, r io.Reader) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	stored := "source_" + sanitizeFilename(filename)
	filePath := filepath.Join(dir, stored)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info := &FileInfo{
		RunID:       runID,
		Name:        filename,
		Size:        size,
		ContentType: contentType,
		Path:        filepath.Join(runID.String(), stored),
		CreatedAt:   s.now(),
	}
	if err := s.saveMetadata(info); err != nil {
		os.Remove(filePath)
		return nil, err
	}
	return info, nil
}

// Download retrieves the file of a run
func (s *LocalStorage) Download(ctx context.Context, runID uuid.UUID) (io.ReadCloser, *FileInfo, error) {
	info, err := s.getInfo(runID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, info, nil
}

// Delete removes the run directory
func (s *LocalStorage) Delete(ctx context.Context, runID uuid.UUID) error {
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns all stored files, skipping directories without metadata
func (s *LocalStorage) List(ctx context.Context) ([]*FileInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		info, err := s.getInfo(id)
		if err != nil {
			continue
		}
		files = append(files, info)
	}
	return files, nil
}

func (s *LocalStorage) getInfo(runID uuid.UUID) (*FileInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), "meta.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &info, nil
}

func (s *LocalStorage) saveMetadata(info *FileInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.runDir(info.RunID), "meta.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)
	if name == "" {
		return "upload"
	}
	return name
}
