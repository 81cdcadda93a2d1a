package types

import "github.com/cockroachdb/errors"

// ErrStoreClosed is returned by every operation on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Store operation errors. Lookups that find nothing return one of the
// not-found errors with no side effects; ErrPersistence marks a failure that
// was rolled back.
var (
	ErrEntityNotFound   = errors.New("entity not found")
	ErrFragmentNotFound = errors.New("fragment not found")
	ErrInvalidID        = errors.New("invalid ID")
	ErrInvalidMapping   = errors.New("mapping references a fragment that does not exist")
	ErrPersistence      = errors.New("persistence failure")
)

// Pipeline errors.
var (
	ErrNotLinked = errors.New("fragments have not been linked")
	ErrNoSources = errors.New("no scan sources given")
)

// MarkPersistence wraps err with msg and marks it as ErrPersistence so callers
// can test for it with errors.Is, from this package's errors library or the
// standard library, while the original cause stays attached.
func MarkPersistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &persistenceError{cause: errors.Wrap(err, msg)}
}

// persistenceError matches ErrPersistence and unwraps to its cause.
type persistenceError struct {
	cause error
}

func (e *persistenceError) Error() string { return e.cause.Error() }

func (e *persistenceError) Unwrap() error { return e.cause }

func (e *persistenceError) Is(target error) bool { return target == ErrPersistence }
