// Package statestore implements the versioned workflow state store: every
// accepted write becomes a new immutable version in a per-workflow append-only
// log, with validation in front, conflict detection alongside, and
// subscription notifications behind. The Manager is the single entry point;
// agents reach it through the task dispatch surface or the HTTP API.
package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/events"
	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence"
	"github.com/helaix/flowstate/pkg/validation"
)

// SnapshotArchive recalls snapshot payloads that were offloaded to cold
// storage. Implementations live in pkg/archive; the store only needs the read
// side to restore from archived snapshots.
type SnapshotArchive interface {
	Recall(ctx context.Context, snapshot *models.StateSnapshot) (*models.WorkflowState, error)
}

// Manager coordinates validation, version allocation, conflict detection,
// and notification for workflow states. Writes to the same workflow are
// serialized through a per-workflow lock; writes to different workflows and
// all reads proceed concurrently.
type Manager struct {
	persistence persistence.Persistence
	validator   *validation.Validator
	detector    *ConflictDetector
	registry    *SubscriptionRegistry
	publisher   eventbus.EventPublisher
	archive     SnapshotArchive
	logger      *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // workflow id -> write lock
}

// NewManager creates a state manager on top of a persistence backend. The
// publisher and archive may be nil: without a publisher notifications go to
// the log only, and without an archive offloaded snapshots cannot be
// restored.
func NewManager(persist persistence.Persistence, publisher eventbus.EventPublisher, archive SnapshotArchive, logger *slog.Logger) *Manager {
	logger = logger.With("module", "statestore")

	var delivery Delivery
	if publisher != nil {
		delivery = NewBusDelivery(publisher)
	} else {
		delivery = NewLogDelivery(logger)
	}

	return &Manager{
		persistence: persist,
		validator:   validation.NewValidator(),
		detector:    NewConflictDetector(logger),
		registry:    NewSubscriptionRegistry(logger, delivery),
		publisher:   publisher,
		archive:     archive,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// PersistWorkflowState validates the candidate state and appends it as the
// workflow's next version. A write based on stale data is still accepted
// (last write wins) but queues a StateConflict for later reconciliation.
// Returns the stored version carrying its allocated number and checksum.
func (m *Manager) PersistWorkflowState(ctx context.Context, workflowID string, state *models.WorkflowState, author, description string) (*models.StateVersion, error) {
	result := m.validator.ValidateState(workflowID, state)
	if !result.Valid {
		return nil, &ValidationError{WorkflowID: workflowID, Errors: result.Errors, Warnings: result.Warnings}
	}

	if len(result.Warnings) > 0 {
		m.logger.WarnContext(ctx, "state accepted with warnings",
			"workflow_id", workflowID,
			"warnings", result.Warnings)
	}

	unlock := m.lockWorkflow(workflowID)
	defer unlock()

	head, err := m.persistence.HeadVersion(ctx, workflowID)
	if err != nil {
		return nil, &StorageError{Op: "PersistWorkflowState", WorkflowID: workflowID, Err: err}
	}

	var headState *models.WorkflowState
	if head != nil {
		headState = head.State
	}

	changes := m.detector.Diff(workflowID, author, headState, state)
	conflict := m.detector.Detect(workflowID, state, head, changes)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate version ID: %w", err)
	}

	version := &models.StateVersion{
		ID:          id.String(),
		WorkflowID:  workflowID,
		State:       state,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   author,
		Description: description,
		Checksum:    result.Checksum,
	}

	stored, err := m.persistence.AppendVersion(ctx, version)
	if err != nil {
		return nil, &StorageError{Op: "PersistWorkflowState", WorkflowID: workflowID, Err: err}
	}

	if conflict != nil {
		m.queueConflict(ctx, conflict, head, stored)
	}

	m.registry.Notify(ctx, stored, changes)

	return stored, nil
}

// VersionSelector picks which version of a workflow to read: by version id
// when ID is set, by number when Number is positive, the current head
// otherwise.
type VersionSelector struct {
	Number int64
	ID     string
}

// GetWorkflowState returns the state stored in the selected version, or
// (nil, nil) when the workflow or version does not exist.
func (m *Manager) GetWorkflowState(ctx context.Context, workflowID string, selector VersionSelector) (*models.WorkflowState, error) {
	version, err := m.getVersion(ctx, workflowID, selector)
	if err != nil {
		return nil, err
	}

	if version == nil {
		return nil, nil
	}

	return version.State, nil
}

// GetWorkflowVersion returns the selected version record, or (nil, nil).
func (m *Manager) GetWorkflowVersion(ctx context.Context, workflowID string, selector VersionSelector) (*models.StateVersion, error) {
	return m.getVersion(ctx, workflowID, selector)
}

// GetWorkflowHistory returns every version of a workflow, most recent first.
// Unknown workflows yield an empty slice.
func (m *Manager) GetWorkflowHistory(ctx context.Context, workflowID string) ([]*models.StateVersion, error) {
	history, err := m.persistence.VersionHistory(ctx, workflowID)
	if err != nil {
		return nil, &StorageError{Op: "GetWorkflowHistory", WorkflowID: workflowID, Err: err}
	}

	return history, nil
}

// SubscribeToStateChanges registers an agent for notifications about a
// workflow. An empty eventTypes set subscribes to every change type;
// re-subscribing updates the filter instead of duplicating the subscription.
func (m *Manager) SubscribeToStateChanges(ctx context.Context, workflowID, agentID string, eventTypes []models.ChangeType) (*models.StateSubscription, error) {
	validationErrors := make([]string, 0, 2)
	if workflowID == "" {
		validationErrors = append(validationErrors, "workflow id is required")
	}

	if agentID == "" {
		validationErrors = append(validationErrors, "agent id is required")
	}

	if len(validationErrors) > 0 {
		return nil, &ValidationError{WorkflowID: workflowID, Errors: validationErrors}
	}

	subscription := m.registry.Subscribe(workflowID, agentID, eventTypes)

	m.logger.DebugContext(ctx, "agent subscribed to state changes",
		"workflow_id", workflowID,
		"agent_id", agentID,
		"event_types", eventTypes)

	return subscription, nil
}

// Subscriptions returns the active subscriptions for a workflow.
func (m *Manager) Subscriptions(workflowID string) []*models.StateSubscription {
	return m.registry.Subscriptions(workflowID)
}

// ListConflicts returns pending conflicts, most recent first. An empty
// workflowID lists pending conflicts across all workflows.
func (m *Manager) ListConflicts(ctx context.Context, workflowID string) ([]*models.StateConflict, error) {
	conflicts, err := m.persistence.PendingConflicts(ctx, workflowID)
	if err != nil {
		return nil, &StorageError{Op: "ListConflicts", WorkflowID: workflowID, Err: err}
	}

	return conflicts, nil
}

// MarkConflictResolved records that a queued conflict has been reconciled.
// How it was reconciled is the caller's policy; the store only keeps the
// queue accurate.
func (m *Manager) MarkConflictResolved(ctx context.Context, conflictID, resolvedBy string) error {
	conflict, err := m.persistence.ConflictByID(ctx, conflictID)
	if err != nil {
		return &StorageError{Op: "MarkConflictResolved", Err: err}
	}

	if conflict == nil {
		return &NotFoundError{Kind: "conflict", ID: conflictID}
	}

	err = m.persistence.UpdateConflictStatus(ctx, conflictID, models.ConflictStatusResolved)
	if err != nil {
		if persistence.IsConflictNotFound(err) {
			return &NotFoundError{Kind: "conflict", ID: conflictID}
		}

		return &StorageError{Op: "MarkConflictResolved", WorkflowID: conflict.WorkflowID, Err: err}
	}

	m.publishEvent(ctx, conflict.WorkflowID, events.ConflictResolved{
		BaseEvent:  events.NewBaseEvent(events.ConflictResolvedEvent, conflict.WorkflowID),
		ConflictID: conflictID,
		Status:     models.ConflictStatusResolved,
		ResolvedBy: resolvedBy,
	})

	return nil
}

// HealthCheck reports whether the persistence backend is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.persistence.HealthCheck(ctx)
}

// lockWorkflow takes the write lock for one workflow and returns the unlock.
// Locks are created on first use and kept for the workflow's lifetime; reads
// never touch them.
func (m *Manager) lockWorkflow(workflowID string) func() {
	m.locksMu.Lock()

	lock, ok := m.locks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[workflowID] = lock
	}

	m.locksMu.Unlock()

	lock.Lock()

	return lock.Unlock
}

func (m *Manager) getVersion(ctx context.Context, workflowID string, selector VersionSelector) (*models.StateVersion, error) {
	var (
		version *models.StateVersion
		err     error
	)

	switch {
	case selector.ID != "":
		version, err = m.persistence.VersionByID(ctx, selector.ID)
	case selector.Number > 0:
		version, err = m.persistence.VersionByNumber(ctx, workflowID, selector.Number)
	default:
		version, err = m.persistence.HeadVersion(ctx, workflowID)
	}

	if err != nil {
		return nil, &StorageError{Op: "GetWorkflowState", WorkflowID: workflowID, Err: err}
	}

	// A version id from another workflow is treated as absent, not leaked.
	if version == nil || version.WorkflowID != workflowID {
		return nil, nil
	}

	return version, nil
}

// queueConflict attaches the involved version numbers and persists the
// conflict record. The winning write is already durable at this point, so a
// failure here is logged and swallowed: losing an advisory record must not
// fail the persist.
func (m *Manager) queueConflict(ctx context.Context, conflict *models.StateConflict, head, stored *models.StateVersion) {
	conflict.Versions = []int64{head.Version, stored.Version}

	err := m.persistence.SaveConflict(ctx, conflict)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to queue state conflict",
			"error", err,
			"workflow_id", conflict.WorkflowID,
			"conflict_id", conflict.ID)

		return
	}

	m.logger.WarnContext(ctx, "stale write accepted, conflict queued",
		"workflow_id", conflict.WorkflowID,
		"conflict_id", conflict.ID,
		"versions", conflict.Versions)

	m.publishEvent(ctx, conflict.WorkflowID, events.ConflictDetected{
		BaseEvent:  events.NewBaseEvent(events.ConflictDetectedEvent, conflict.WorkflowID),
		ConflictID: conflict.ID,
		Versions:   conflict.Versions,
		Resolution: conflict.Resolution,
		Changes:    conflict.Changes,
	})
}

// publishEvent emits a store event on the bus when one is configured. Bus
// problems are logged; store operations never fail because of them.
func (m *Manager) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event",
			"error", err,
			"event_type", event.GetType(),
			"key", key)
	}
}
