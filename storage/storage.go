// Package storage persists run state between invocations: the download
// history that lets a later run skip media it already fetched. State lives
// in a single JSON file, written atomically and guarded by an advisory file
// lock so concurrent invocations cannot corrupt it.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt indicates the state file exists but cannot be parsed.
	ErrCorrupt = errors.New("storage: state file corrupt")
	// ErrLockTimeout indicates another process holds the state file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError provides context about a failed storage operation.
type StorageError struct {
	Op   string // "read", "write", "lock"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
