package sessionstore

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is raised by updates that require prior state.
	// Read paths report absence as a nil value, never as this error.
	ErrSessionNotFound = errors.New("global transaction is not exist")

	// ErrBranchSessionNotFound is the branch flavor of ErrSessionNotFound.
	ErrBranchSessionNotFound = errors.New("branch transaction is not exist")

	// ErrInvalidOperation covers unknown log operations and records that do
	// not match the operation kind.
	ErrInvalidOperation = errors.New("invalid store operation")

	// ErrWriteConflict reports a partially applied multi-key update that was
	// rolled back by compensation. The status index is repaired on best
	// effort; the recovery scan restores it fully.
	ErrWriteConflict = errors.New("write conflict, compensated")
)

// wrapStoreErr tags backing-store failures with the failed operation so the
// caller log carries enough context to find the key.
func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("store %s: %w", op, err)
}
