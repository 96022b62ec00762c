package statestore

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a candidate state that failed structural checks.
// Nothing was persisted and the workflow's version counter did not advance.
type ValidationError struct {
	WorkflowID string
	Errors     []string
	Warnings   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("state validation failed for workflow %q: %s", e.WorkflowID, strings.Join(e.Errors, "; "))
}

// NotFoundError reports a missing workflow, snapshot, or conflict on an
// operation that requires it to exist. Plain reads signal absence with a nil
// result instead.
type NotFoundError struct {
	Kind string // "workflow", "snapshot", "conflict"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// StorageError reports a failure in the persistence substrate. The operation
// is safe to retry; a retried persist simply attempts the next version again.
type StorageError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *StorageError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("%s failed for workflow %q: %v", e.Op, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidation checks if an error is a state validation failure.
func IsValidation(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// IsNotFound checks if an error reports a missing entity.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError

	return errors.As(err, &notFoundErr)
}

// IsStorage checks if an error reports a persistence failure.
func IsStorage(err error) bool {
	var storageErr *StorageError

	return errors.As(err, &storageErr)
}
