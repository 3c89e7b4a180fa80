package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
)

var ErrNotFound = errors.New("file not found")

// FileStorage keeps proof photos and reference photos. Paths returned by
// Upload are opaque references that callers store and hand back later.
type FileStorage interface {
	// Upload stores the file and returns its reference
	Upload(ctx context.Context, file io.Reader, path string, contentType string) (string, error)

	// Download opens a stored file, ErrNotFound when it does not exist
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	Delete(ctx context.Context, path string) error

	// GetURL returns a URL the file can be fetched from
	GetURL(ctx context.Context, path string, expiry time.Duration) (string, error)

	Exists(ctx context.Context, path string) (bool, error)
}

// New builds the storage backend selected by cfg.Type.
func New(cfg config.StorageConfig) (FileStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.BasePath, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
