// Package objectstore issues time-limited upload grants and fetches uploaded
// roster objects.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrTooLarge is returned when an upload exceeds MaxObjectSize.
	ErrTooLarge = errors.New("object exceeds size limit")
)

// Grant is a time-limited credential to upload one object.
type Grant struct {
	URL       string
	Method    string
	Fields    map[string]string
	Bucket    string
	ExpiresAt time.Time
}

// Presigner issues upload grants. A backend may shorten the requested
// expiry; the returned Grant carries the effective one.
type Presigner interface {
	Presign(ctx context.Context, key, contentType string, expiresAt time.Time) (Grant, error)
}

// Fetcher reads uploaded objects.
type Fetcher interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Store is a backend that both issues grants and serves objects.
type Store interface {
	Presigner
	Fetcher
}
