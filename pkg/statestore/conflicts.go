package statestore

import (
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/helaix/flowstate/pkg/models"
)

// ConflictDetector computes attributed deltas between states and flags writes
// that were based on stale data. Detection is a heuristic over the
// caller-owned UpdatedAt timestamps; it advises, it never blocks.
type ConflictDetector struct {
	logger *slog.Logger
}

// NewConflictDetector creates a detector.
func NewConflictDetector(logger *slog.Logger) *ConflictDetector {
	return &ConflictDetector{logger: logger}
}

// Diff returns the field-level changes between the previous and the candidate
// state, attributed to agentID. A nil oldState means this is the workflow's
// first version and yields no changes.
func (d *ConflictDetector) Diff(workflowID, agentID string, oldState, newState *models.WorkflowState) []models.StateChange {
	if oldState == nil {
		return nil
	}

	now := time.Now().UTC()
	changes := make([]models.StateChange, 0)

	if oldState.Status != newState.Status {
		changes = append(changes, models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeWorkflowStatus,
			Path:       "status",
			OldValue:   string(oldState.Status),
			NewValue:   string(newState.Status),
			AgentID:    agentID,
			Timestamp:  now,
		})
	}

	changes = append(changes, diffTasks(workflowID, agentID, now, oldState.Tasks, newState.Tasks)...)
	changes = append(changes, diffAgents(workflowID, agentID, now, oldState.Agents, newState.Agents)...)
	changes = append(changes, diffMetadata(workflowID, agentID, now, oldState.Metadata, newState.Metadata)...)

	return changes
}

// Detect flags a candidate write whose embedded UpdatedAt is strictly older
// than the current head's: the author edited data that was already replaced.
// The returned conflict has no version numbers yet; the caller fills them in
// once the winning write has been assigned one. Returns nil when there is no
// head, or when either timestamp is missing.
func (d *ConflictDetector) Detect(workflowID string, incoming *models.WorkflowState, head *models.StateVersion, changes []models.StateChange) *models.StateConflict {
	if head == nil || head.State == nil {
		return nil
	}

	if incoming.UpdatedAt.IsZero() || head.State.UpdatedAt.IsZero() {
		return nil
	}

	if !incoming.UpdatedAt.Before(head.State.UpdatedAt) {
		return nil
	}

	d.logger.Debug("stale write detected",
		"workflow_id", workflowID,
		"incoming_updated_at", incoming.UpdatedAt,
		"head_updated_at", head.State.UpdatedAt)

	return &models.StateConflict{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Changes:    changes,
		DetectedAt: time.Now().UTC(),
		Resolution: models.ResolutionLastWriteWins,
		Status:     models.ConflictStatusPending,
	}
}

func diffTasks(workflowID, agentID string, now time.Time, oldTasks, newTasks map[string]*models.AgentTask) []models.StateChange {
	changes := make([]models.StateChange, 0)

	for _, taskID := range slices.Sorted(maps.Keys(newTasks)) {
		newTask := newTasks[taskID]

		oldTask, exists := oldTasks[taskID]
		switch {
		case !exists:
			changes = append(changes, models.StateChange{
				WorkflowID: workflowID,
				Type:       models.ChangeTypeTaskUpdate,
				Path:       "tasks." + taskID,
				NewValue:   string(newTask.Status),
				AgentID:    agentID,
				Timestamp:  now,
			})
		case oldTask.Status != newTask.Status:
			changes = append(changes, models.StateChange{
				WorkflowID: workflowID,
				Type:       models.ChangeTypeTaskUpdate,
				Path:       "tasks." + taskID + ".status",
				OldValue:   string(oldTask.Status),
				NewValue:   string(newTask.Status),
				AgentID:    agentID,
				Timestamp:  now,
			})
		}
	}

	for _, taskID := range slices.Sorted(maps.Keys(oldTasks)) {
		if _, exists := newTasks[taskID]; exists {
			continue
		}

		changes = append(changes, models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeTaskUpdate,
			Path:       "tasks." + taskID,
			OldValue:   string(oldTasks[taskID].Status),
			AgentID:    agentID,
			Timestamp:  now,
		})
	}

	return changes
}

func diffAgents(workflowID, agentID string, now time.Time, oldAgents, newAgents map[string]string) []models.StateChange {
	changes := make([]models.StateChange, 0)

	for _, role := range slices.Sorted(maps.Keys(newAgents)) {
		oldInstance, exists := oldAgents[role]
		if exists && oldInstance == newAgents[role] {
			continue
		}

		change := models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeAgentStatus,
			Path:       "agents." + role,
			NewValue:   newAgents[role],
			AgentID:    agentID,
			Timestamp:  now,
		}
		if exists {
			change.OldValue = oldInstance
		}

		changes = append(changes, change)
	}

	for _, role := range slices.Sorted(maps.Keys(oldAgents)) {
		if _, exists := newAgents[role]; exists {
			continue
		}

		changes = append(changes, models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeAgentStatus,
			Path:       "agents." + role,
			OldValue:   oldAgents[role],
			AgentID:    agentID,
			Timestamp:  now,
		})
	}

	return changes
}

// diffMetadata compares the metadata bag key by key. Values stay loosely
// typed, so equality is structural.
func diffMetadata(workflowID, agentID string, now time.Time, oldMeta, newMeta map[string]any) []models.StateChange {
	changes := make([]models.StateChange, 0)

	for _, key := range slices.Sorted(maps.Keys(newMeta)) {
		oldValue, exists := oldMeta[key]
		if exists && reflect.DeepEqual(oldValue, newMeta[key]) {
			continue
		}

		change := models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeMetadataUpdate,
			Path:       "metadata." + key,
			NewValue:   newMeta[key],
			AgentID:    agentID,
			Timestamp:  now,
		}
		if exists {
			change.OldValue = oldValue
		}

		changes = append(changes, change)
	}

	for _, key := range slices.Sorted(maps.Keys(oldMeta)) {
		if _, exists := newMeta[key]; exists {
			continue
		}

		changes = append(changes, models.StateChange{
			WorkflowID: workflowID,
			Type:       models.ChangeTypeMetadataUpdate,
			Path:       "metadata." + key,
			OldValue:   oldMeta[key],
			AgentID:    agentID,
			Timestamp:  now,
		})
	}

	return changes
}
