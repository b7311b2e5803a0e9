package database

import "errors"

var (
	// ErrRootMismatch is returned by Seed when the store already holds a crawl
	// of a different root. Reset the store or use another database file.
	ErrRootMismatch = errors.New("store belongs to a different root URL")

	// ErrNodeNotFound is returned when an operation names a URL the store
	// does not know.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidDepth is returned when a discovery breaks the rule
	// depth(child) == depth(parent) + 1.
	ErrInvalidDepth = errors.New("invalid discovery depth")

	// ErrInconsistent is returned by Verify when the stored graph breaks one
	// of the store's structural rules.
	ErrInconsistent = errors.New("store is inconsistent")
)

// sentinels are returned unwrapped by storageErr.
var sentinels = []error{ErrRootMismatch, ErrNodeNotFound, ErrInvalidDepth, ErrInconsistent}

// StorageError wraps a failure of the underlying database.
// The crawler treats it as fatal: the store is the only record of progress,
// so continuing with unsaved in-memory state would silently lose data.
type StorageError struct {
	// Op names the store operation that failed.
	Op string

	// Err is the driver error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return "storage failure during " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the driver error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err as a *StorageError unless it is nil or already one of
// the store's own sentinel errors.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
