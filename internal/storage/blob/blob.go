// Package blob stores the extracted reference text of look-up data sources.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists at the given path.
var ErrNotFound = errors.New("blob: object not found")

// Store is the byte-level contract the reference data loader reads through.
// Content is UTF-8 text.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Put(ctx context.Context, path string, content []byte) error
}
