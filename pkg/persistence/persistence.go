// Package persistence provides the storage abstraction for workflow state
// versions, snapshots, and conflict records.
package persistence

import (
	"context"
	"time"

	"github.com/helaix/flowstate/pkg/models"
)

// Persistence is the storage contract every backend implements. Lookup
// methods return (nil, nil) when the target does not exist; absence is a
// normal result, not an error. List methods return empty slices.
//
// AppendVersion is the one write with allocation semantics: the backend
// assigns the next version number and parent linkage atomically, so two
// racing appends for the same workflow can never mint the same number or
// leave a gap.
type Persistence interface {
	// AppendVersion stores a new immutable version. The caller fills every
	// field except Version and ParentVersion; the backend assigns those from
	// the current head inside one atomic step and moves the head pointer.
	AppendVersion(ctx context.Context, version *models.StateVersion) (*models.StateVersion, error)
	// HeadVersion returns the most recently appended version for a workflow.
	HeadVersion(ctx context.Context, workflowID string) (*models.StateVersion, error)
	// VersionByNumber returns the version with the given number.
	VersionByNumber(ctx context.Context, workflowID string, number int64) (*models.StateVersion, error)
	// VersionByID returns a version by its identifier.
	VersionByID(ctx context.Context, versionID string) (*models.StateVersion, error)
	// VersionHistory returns every version of a workflow, most recent first.
	VersionHistory(ctx context.Context, workflowID string) ([]*models.StateVersion, error)

	// SaveSnapshot inserts or replaces a snapshot record. Replacement happens
	// when a snapshot's payload is offloaded to cold storage and its index
	// entry is rewritten with the archive location.
	SaveSnapshot(ctx context.Context, snapshot *models.StateSnapshot) error
	// SnapshotByID returns a snapshot by its identifier.
	SnapshotByID(ctx context.Context, snapshotID string) (*models.StateSnapshot, error)
	// SnapshotsByWorkflow returns a workflow's snapshots, most recent first.
	SnapshotsByWorkflow(ctx context.Context, workflowID string) ([]*models.StateSnapshot, error)
	// ArchivableSnapshots returns snapshots whose payload is still inline,
	// created before cutoff and at least minSizeBytes large, oldest first.
	// The archive sweeper uses this to pick offload candidates.
	ArchivableSnapshots(ctx context.Context, cutoff time.Time, minSizeBytes int64) ([]*models.StateSnapshot, error)

	// SaveConflict records a detected conflict for later reconciliation.
	SaveConflict(ctx context.Context, conflict *models.StateConflict) error
	// ConflictByID returns a conflict by its identifier.
	ConflictByID(ctx context.Context, conflictID string) (*models.StateConflict, error)
	// PendingConflicts returns a workflow's unresolved conflicts, most recent
	// first. An empty workflow id selects pending conflicts across workflows.
	PendingConflicts(ctx context.Context, workflowID string) ([]*models.StateConflict, error)
	// UpdateConflictStatus moves a conflict through its queue lifecycle.
	// Returns ErrConflictNotFound when the id is unknown.
	UpdateConflictStatus(ctx context.Context, conflictID string, status models.ConflictStatus) error

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
