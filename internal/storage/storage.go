package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"docvault/internal/config"
)

// Package storage contains blob storage abstractions with an S3-compatible
// backend (MinIO) and a local directory backend. All I/O is streamed.

// ErrObjectNotFound is returned by Get and Stat when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a reusable blob storage client interface.
// Methods use context and streaming readers; objects are never fully loaded in memory.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns object info without opening its content.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// New returns the backend selected by sc.Driver.
func New(sc config.StorageConfig, mc config.MinIOConfig) (Storage, error) {
	switch sc.Driver {
	case "", "minio":
		return NewMinIO(mc)
	case "local":
		return NewLocal(sc)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
