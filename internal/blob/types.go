// Package blob re-exports the core blob abstractions and selects a backend.
// Code outside this package depends on blob.Store, never on a backend package.
package blob

import (
	"usergrid/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when a create-only write targets an existing key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned when a key is missing.
	ErrNotFound = core.ErrNotFound
)
