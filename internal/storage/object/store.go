// Package object stores raw upload bytes in a bucket-like backend.
package object

import (
	"context"
	"errors"
)

// ContentTypeCSV is the content type uploads are stored with.
const ContentTypeCSV = "text/csv"

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("object not found")

// Store is the object storage used for uploaded trade lists.
type Store interface {
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context) error

	// Put stores data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the data stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
