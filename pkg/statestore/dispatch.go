package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/helaix/flowstate/pkg/models"
)

// ProcessTask routes a typed task envelope to the matching store operation
// and wraps the outcome in a uniform TaskResult. Operation failures come back
// as failure envelopes, never as Go errors: the dispatch surface is the
// boundary agents talk to and it always answers.
func (m *Manager) ProcessTask(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	if task == nil {
		return models.FailureResult("task is required")
	}

	err := validateTaskPayload(task.Type, task.Payload)
	if err != nil {
		return models.FailureResult(err.Error())
	}

	switch task.Type {
	case models.TaskTypePersistState:
		return m.dispatchPersistState(ctx, task)
	case models.TaskTypeGetState:
		return m.dispatchGetState(ctx, task)
	case models.TaskTypeGetHistory:
		return m.dispatchGetHistory(ctx, task)
	case models.TaskTypeSubscribeState:
		return m.dispatchSubscribeState(ctx, task)
	case models.TaskTypeCreateSnapshot:
		return m.dispatchCreateSnapshot(ctx, task)
	case models.TaskTypeRestoreSnapshot:
		return m.dispatchRestoreSnapshot(ctx, task)
	case models.TaskTypeListConflicts:
		return m.dispatchListConflicts(ctx, task)
	default:
		return models.FailureResult(fmt.Sprintf("Unknown task type: %s", task.Type))
	}
}

func (m *Manager) dispatchPersistState(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	state, err := decodeStatePayload(task.Payload["state"])
	if err != nil {
		return models.FailureResult(err.Error())
	}

	version, err := m.PersistWorkflowState(ctx, taskWorkflowID(task), state, taskAuthor(task, "author"), stringField(task.Payload, "description"))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(version)
}

func (m *Manager) dispatchGetState(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	selector := VersionSelector{ID: stringField(task.Payload, "version_id")}
	if number, ok := numberField(task.Payload, "version"); ok {
		selector.Number = number
	}

	// Absence is a normal answer here: unknown workflows or versions yield a
	// success envelope with a null result.
	state, err := m.GetWorkflowState(ctx, taskWorkflowID(task), selector)
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(state)
}

func (m *Manager) dispatchGetHistory(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	history, err := m.GetWorkflowHistory(ctx, taskWorkflowID(task))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(history)
}

func (m *Manager) dispatchSubscribeState(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	agentID := stringField(task.Payload, "agent_id")
	if agentID == "" {
		agentID = task.AssignedTo
	}

	subscription, err := m.SubscribeToStateChanges(ctx, taskWorkflowID(task), agentID, changeTypesField(task.Payload, "event_types"))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(subscription)
}

func (m *Manager) dispatchCreateSnapshot(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	snapshot, err := m.CreateStateSnapshot(ctx, taskWorkflowID(task), stringField(task.Payload, "description"), taskAuthor(task, "created_by"))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(snapshot)
}

func (m *Manager) dispatchRestoreSnapshot(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	version, err := m.RestoreFromSnapshot(ctx, taskWorkflowID(task), stringField(task.Payload, "snapshot_id"), taskAuthor(task, "restored_by"))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(version)
}

func (m *Manager) dispatchListConflicts(ctx context.Context, task *models.AgentTask) *models.TaskResult {
	// No workflow id means list across all workflows, so no task fallback.
	conflicts, err := m.ListConflicts(ctx, stringField(task.Payload, "workflow_id"))
	if err != nil {
		return models.FailureResult(err.Error())
	}

	return models.SuccessResult(conflicts)
}

// taskWorkflowID prefers the payload's workflow id and falls back to the
// task's own.
func taskWorkflowID(task *models.AgentTask) string {
	if workflowID := stringField(task.Payload, "workflow_id"); workflowID != "" {
		return workflowID
	}

	return task.WorkflowID
}

// taskAuthor resolves who a write is attributed to: the named payload field,
// then the task's assignee, then "system".
func taskAuthor(task *models.AgentTask, field string) string {
	if author := stringField(task.Payload, field); author != "" {
		return author
	}

	if task.AssignedTo != "" {
		return task.AssignedTo
	}

	return "system"
}

// decodeStatePayload converts the loosely typed payload state into a model.
// In-process callers may hand over the struct directly; everything else
// arrives as a generic JSON object and takes the round trip.
func decodeStatePayload(raw any) (*models.WorkflowState, error) {
	switch value := raw.(type) {
	case nil:
		return nil, errors.New("state payload is required")
	case *models.WorkflowState:
		return value, nil
	case models.WorkflowState:
		return &value, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state payload: %w", err)
	}

	state := &models.WorkflowState{}

	err = json.Unmarshal(data, state)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state payload: %w", err)
	}

	return state, nil
}

func stringField(payload map[string]any, key string) string {
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}

	return value
}

// numberField reads an integer payload field. JSON decoding hands numbers
// over as float64; in-process callers may use int types directly.
func numberField(payload map[string]any, key string) (int64, bool) {
	switch value := payload[key].(type) {
	case float64:
		return int64(value), true
	case int:
		return int64(value), true
	case int64:
		return value, true
	}

	return 0, false
}

func changeTypesField(payload map[string]any, key string) []models.ChangeType {
	switch value := payload[key].(type) {
	case []models.ChangeType:
		return value
	case []any:
		types := make([]models.ChangeType, 0, len(value))

		for _, entry := range value {
			if name, ok := entry.(string); ok {
				types = append(types, models.ChangeType(name))
			}
		}

		return types
	case []string:
		types := make([]models.ChangeType, 0, len(value))
		for _, name := range value {
			types = append(types, models.ChangeType(name))
		}

		return types
	}

	return nil
}
