package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archive keeps a copy of each receipt that reached the ledger
type Archive interface {
	// Save stores data under name in the folder for day and returns where it went
	Save(ctx context.Context, name string, data []byte, mimeType string, day time.Time) (string, error)
}

// LocalArchive implements Archive on the local filesystem, one directory per day
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new LocalArchive rooted at basePath
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &LocalArchive{
		basePath: basePath,
	}, nil
}

// Save writes the file to basePath/YYYY-MM-DD/name
func (l *LocalArchive) Save(ctx context.Context, name string, data []byte, mimeType string, day time.Time) (string, error) {
	dir := filepath.Join(l.basePath, day.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating day directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filepath.Join(day.Format("2006-01-02"), name), nil
}
