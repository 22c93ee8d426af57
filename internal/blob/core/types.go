// Package core defines the blob storage contract shared by the backend
// implementations and the snapshot persistence driver.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs"
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3"
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the minimal object store used for snapshot generations.
type Store interface {
	// Put stores a new blob at key and fails with ErrExists when the key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves blob contents; ErrNotFound when missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Delete removes a blob. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has the prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is already present.
	ErrExists = errors.New("blobstore: key already exists")
	// ErrNotFound is returned when a key is missing.
	ErrNotFound = errors.New("blobstore: key not found")
)
