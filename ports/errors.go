package ports

import "errors"

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists indicates a uniqueness conflict on create.
	ErrExists = errors.New("already exists")
)
