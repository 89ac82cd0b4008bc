package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAccessible is the single outcome for a paste that is missing,
	// time-expired or view-exhausted. Callers cannot tell these apart.
	ErrNotAccessible = errors.New("paste not accessible")
	// ErrStorage marks failures where the store could not give an answer.
	ErrStorage = errors.New("storage failure")
	// ErrIndeterminate marks an increment whose outcome is unknown because
	// the call was abandoned. It also matches ErrStorage.
	ErrIndeterminate = errors.New("view increment outcome indeterminate")
)

// StorageError wraps a failed store operation.
type StorageError struct {
	Op            string
	Err           error
	Indeterminate bool
}

func (e *StorageError) Error() string {
	if e.Indeterminate {
		return fmt.Sprintf("%s: indeterminate: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage, and ErrIndeterminate when the outcome is unknown.
func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrStorage:
		return true
	case ErrIndeterminate:
		return e.Indeterminate
	}
	return false
}
