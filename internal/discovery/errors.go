package discovery

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrScanRootUnavailable marks a scan that could not read its root path.
var ErrScanRootUnavailable = errors.New("discovery: scan root unavailable")

// ErrNotDirectory is wrapped in a RootError when the root is a regular file.
var ErrNotDirectory = errors.New("not a directory")

// RootError is the terminal error of a scan whose root could not be read.
// errors.Is matches both ErrScanRootUnavailable and the underlying OS error.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("discovery: scan root %s unavailable: %v", e.Root, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *RootError) Unwrap() []error {
	return []error{ErrScanRootUnavailable, e.Err}
}

// Skip reasons.
const (
	ReasonNotFound   = "not_found"
	ReasonPermission = "permission"
	ReasonOther      = "other"
)

// SkippedEntry records an entry the scan could not describe or descend into.
// It is reported alongside results and never aborts a scan.
type SkippedEntry struct {
	Path   string
	Reason string
	Err    error

	key string
}

func (s SkippedEntry) Error() string {
	return fmt.Sprintf("skipped %s (%s): %v", s.Path, s.Reason, s.Err)
}

func (s SkippedEntry) Unwrap() error {
	return s.Err
}

func newSkipped(path, key string, err error) SkippedEntry {
	reason := ReasonOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		reason = ReasonNotFound
	case errors.Is(err, fs.ErrPermission):
		reason = ReasonPermission
	}
	return SkippedEntry{Path: path, Reason: reason, Err: err, key: key}
}
