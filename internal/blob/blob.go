package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a storage path has no object behind it.
var ErrNotFound = errors.New("blob not found")

// Store holds raw uploaded files and mints time-limited download URLs.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete reports whether the object existed.
	Delete(ctx context.Context, path string) (bool, error)
	// SignedURL fails with ErrNotFound if the path has no object.
	SignedURL(path string, ttl time.Duration) (string, error)
}
