package database

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubscribed indicates a subscribe call with no effective
	// change: the subscriber already follows the feed with the same
	// link-preview preference.
	ErrAlreadySubscribed = errors.New("database: already subscribed")
	// ErrNotSubscribed indicates an unsubscribe call for a membership
	// that does not exist.
	ErrNotSubscribed = errors.New("database: not subscribed")
)

// OpenError indicates that an existing snapshot file could not be read.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("database: open snapshot %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SaveError indicates that the snapshot file could not be written. The
// in-memory state that the failed save was meant to capture is kept; the
// store retries on the next mutation.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("database: save snapshot %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// FormatError indicates that a snapshot file exists but does not parse
// into the expected shape.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("database: malformed snapshot: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
