// Package sentinel holds the storage-level facts that services translate into
// domain errors. Stores, the year locker and the directory client return them,
// usually wrapped with context.
package sentinel

import "errors"

var (
	// ErrNotFound means the row or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique index rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means a backing service could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
