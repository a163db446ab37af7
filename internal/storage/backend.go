package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Read and StreamRead when no object exists at
// the requested path.
var ErrNotFound = errors.New("storage: object not found")

// Backend is the uniform contract every storage implementation satisfies.
// Paths are opaque keys composed of a location prefix and an object name.
type Backend interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
	// StreamRead returns a finite, non-restartable reader over the object.
	StreamRead(ctx context.Context, path string) (io.ReadCloser, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Close() error
}

// Open builds the backend selected by kind. root is the base directory for
// the local filesystem and the database directory for badger.
func Open(kind, root string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "local", "fs":
		return NewLocalStorage(root)
	case "badger":
		return NewBadgerStorage(root)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// Join composes an object path from a location prefix and a name. Prefixes
// may or may not carry a trailing separator.
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}
