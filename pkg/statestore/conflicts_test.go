package statestore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/statestore"
)

func changePaths(changes []models.StateChange) []string {
	paths := make([]string, 0, len(changes))
	for _, change := range changes {
		paths = append(paths, change.Path)
	}

	return paths
}

func TestConflictDetector_DiffFirstVersion(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	changes := detector.Diff("wf-1", "agent-1", nil, testState("wf-1"))
	assert.Empty(t, changes, "the first version has nothing to diff against")
}

func TestConflictDetector_DiffStatus(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	oldState := testState("wf-1")
	newState := testState("wf-1")
	newState.Status = models.WorkflowStatusCompleted

	changes := detector.Diff("wf-1", "agent-1", oldState, newState)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, models.ChangeTypeWorkflowStatus, change.Type)
	assert.Equal(t, "status", change.Path)
	assert.Equal(t, "running", change.OldValue)
	assert.Equal(t, "completed", change.NewValue)
	assert.Equal(t, "agent-1", change.AgentID)
	assert.Equal(t, "wf-1", change.WorkflowID)
	assert.False(t, change.Timestamp.IsZero())
}

func TestConflictDetector_DiffTasks(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	oldState := testState("wf-1")
	oldState.Tasks["task-2"] = &models.AgentTask{ID: "task-2", Type: "test", Status: models.TaskStatusPending}

	newState := testState("wf-1")
	newState.Tasks["task-1"].Status = models.TaskStatusCompleted
	newState.Tasks["task-3"] = &models.AgentTask{ID: "task-3", Type: "deploy", Status: models.TaskStatusPending}

	changes := detector.Diff("wf-1", "agent-1", oldState, newState)
	require.Len(t, changes, 3)

	for _, change := range changes {
		assert.Equal(t, models.ChangeTypeTaskUpdate, change.Type)
	}

	// Additions and updates come sorted by task id, removals after.
	assert.Equal(t, []string{"tasks.task-1.status", "tasks.task-3", "tasks.task-2"}, changePaths(changes))

	assert.Equal(t, "running", changes[0].OldValue)
	assert.Equal(t, "completed", changes[0].NewValue)

	assert.Nil(t, changes[1].OldValue)
	assert.Equal(t, "pending", changes[1].NewValue)

	assert.Equal(t, "pending", changes[2].OldValue)
	assert.Nil(t, changes[2].NewValue)
}

func TestConflictDetector_DiffAgents(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	oldState := testState("wf-1")
	oldState.Agents = map[string]string{"builder": "agent-1", "tester": "agent-2"}

	newState := testState("wf-1")
	newState.Agents = map[string]string{"builder": "agent-9", "reviewer": "agent-3"}

	changes := detector.Diff("wf-1", "agent-1", oldState, newState)
	require.Len(t, changes, 3)

	assert.Equal(t, []string{"agents.builder", "agents.reviewer", "agents.tester"}, changePaths(changes))

	assert.Equal(t, "agent-1", changes[0].OldValue)
	assert.Equal(t, "agent-9", changes[0].NewValue)

	assert.Nil(t, changes[1].OldValue)
	assert.Equal(t, "agent-3", changes[1].NewValue)

	assert.Equal(t, "agent-2", changes[2].OldValue)
	assert.Nil(t, changes[2].NewValue)

	for _, change := range changes {
		assert.Equal(t, models.ChangeTypeAgentStatus, change.Type)
	}
}

func TestConflictDetector_DiffMetadata(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	oldState := testState("wf-1")
	oldState.Metadata = map[string]any{"trigger": "push", "attempt": 1, "labels": []any{"ci"}}

	newState := testState("wf-1")
	newState.Metadata = map[string]any{"trigger": "push", "attempt": 2, "owner": "team-infra"}

	changes := detector.Diff("wf-1", "agent-1", oldState, newState)
	require.Len(t, changes, 3)

	assert.Equal(t, []string{"metadata.attempt", "metadata.owner", "metadata.labels"}, changePaths(changes))

	assert.Equal(t, 1, changes[0].OldValue)
	assert.Equal(t, 2, changes[0].NewValue)

	for _, change := range changes {
		assert.Equal(t, models.ChangeTypeMetadataUpdate, change.Type)
	}
}

func TestConflictDetector_DiffUnchanged(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())

	oldState := testState("wf-1")
	newState := testState("wf-1")

	changes := detector.Diff("wf-1", "agent-1", oldState, newState)
	assert.Empty(t, changes)
}

func TestConflictDetector_Detect(t *testing.T) {
	detector := statestore.NewConflictDetector(testLogger())
	base := time.Now().UTC()

	headState := testState("wf-1")
	headState.UpdatedAt = base

	head := &models.StateVersion{
		ID:         "ver-1",
		WorkflowID: "wf-1",
		Version:    4,
		State:      headState,
	}

	stale := testState("wf-1")
	stale.UpdatedAt = base.Add(-time.Second)

	conflict := detector.Detect("wf-1", stale, head, nil)
	require.NotNil(t, conflict)

	assert.NotEmpty(t, conflict.ID)
	assert.Equal(t, "wf-1", conflict.WorkflowID)
	assert.Empty(t, conflict.Versions, "version numbers are attached after the write lands")
	assert.Equal(t, models.ResolutionLastWriteWins, conflict.Resolution)
	assert.Equal(t, models.ConflictStatusPending, conflict.Status)
	assert.False(t, conflict.DetectedAt.IsZero())

	fresh := testState("wf-1")
	fresh.UpdatedAt = base.Add(time.Second)
	assert.Nil(t, detector.Detect("wf-1", fresh, head, nil), "newer writes are not conflicts")

	same := testState("wf-1")
	same.UpdatedAt = base
	assert.Nil(t, detector.Detect("wf-1", same, head, nil), "equal timestamps are not conflicts")

	unstamped := testState("wf-1")
	unstamped.UpdatedAt = time.Time{}
	assert.Nil(t, detector.Detect("wf-1", unstamped, head, nil))

	assert.Nil(t, detector.Detect("wf-1", stale, nil, nil), "no head, nothing to conflict with")
}
