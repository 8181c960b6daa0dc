package store

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to an agent or review that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a create with an id that already exists.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a failure of the underlying database; the operation left no partial state.
	ErrStorage = errors.New("storage failure")
)

// ErrAlreadyResolved is returned when resolving a review twice. It matches ErrNotFound:
// there is no pending review with that id.
var ErrAlreadyResolved = fmt.Errorf("review already resolved: %w", ErrNotFound)

// StorageError wraps a backend failure so callers can match it with errors.Is(err, ErrStorage).
// Domain errors pass through unchanged.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// AgentNotFound is the error for an unknown agent id.
func AgentNotFound(id string) error {
	return fmt.Errorf("%w: agent %q", ErrNotFound, id)
}

// ReviewNotFound is the error for an unknown review id.
func ReviewNotFound(id int64) error {
	return fmt.Errorf("%w: review %d", ErrNotFound, id)
}
