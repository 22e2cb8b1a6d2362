// internal/session/errors.go
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no live session exists under the id.
	ErrNotFound = errors.New("session not found")
	// ErrConflict means the conditional write kept losing after the retry budget.
	ErrConflict = errors.New("conflicting update")
)

// PersistenceError wraps a failure of the session store or the result store.
// Nothing was committed by the failing operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
