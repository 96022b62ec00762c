// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all backends should use.
var (
	// ErrWorkflowNotFound indicates no versions exist for the given workflow identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrVersionNotFound indicates a state version was not found by number or identifier.
	ErrVersionNotFound = errors.New("state version not found")

	// ErrSnapshotNotFound indicates a snapshot was not found by the given identifier.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrConflictNotFound indicates a conflict record was not found by the given identifier.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrDuplicateVersion indicates an append lost an allocation race and should be retried.
	ErrDuplicateVersion = errors.New("duplicate version number")

	// ErrChecksumMismatch indicates stored content no longer matches its recorded checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// StateError wraps version-log errors with operation context.
type StateError struct {
	Op         string // Operation being performed (e.g., "AppendVersion", "HeadVersion")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
	Message    string // Additional context message
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for state errors.
func (e *StateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStateError creates a new state error with context.
func NewStateError(op, workflowID string, err error) *StateError {
	return &StateError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// SnapshotError wraps snapshot-related errors with additional context.
type SnapshotError struct {
	Op         string // Operation being performed
	WorkflowID string // Workflow ID
	SnapshotID string // Snapshot ID
	Err        error  // Underlying error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s operation failed for snapshot %s in workflow %s: %v", e.Op, e.SnapshotID, e.WorkflowID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ConflictError wraps conflict-record errors with additional context.
type ConflictError struct {
	Op         string // Operation being performed
	ConflictID string // Conflict ID
	Err        error  // Underlying error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s operation failed for conflict %s: %v", e.Op, e.ConflictID, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsVersionNotFound checks if an error indicates a state version was not found.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// IsSnapshotNotFound checks if an error indicates a snapshot was not found.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsConflictNotFound checks if an error indicates a conflict record was not found.
func IsConflictNotFound(err error) bool {
	return errors.Is(err, ErrConflictNotFound)
}

// IsChecksumMismatch checks if an error indicates stored content failed its integrity check.
func IsChecksumMismatch(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}
