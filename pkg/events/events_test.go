package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helaix/flowstate/pkg/models"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(StateChangedEvent, "wf-123")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StateChangedEvent, event.Type)
	assert.Equal(t, "wf-123", event.WorkflowID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, Topic, TopicFor(StateChangedEvent))
	assert.Equal(t, Topic, TopicFor(StateRestoredEvent))
	assert.Equal(t, SnapshotTopic, TopicFor(SnapshotCreatedEvent))
	assert.Equal(t, SnapshotTopic, TopicFor(SnapshotArchivedEvent))
	assert.Equal(t, ConflictTopic, TopicFor(ConflictDetectedEvent))
	assert.Equal(t, ConflictTopic, TopicFor(ConflictResolvedEvent))
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, StateChangedEvent, StateChanged{}.GetType())
	assert.Equal(t, StateRestoredEvent, StateRestored{}.GetType())
	assert.Equal(t, SnapshotCreatedEvent, SnapshotCreated{}.GetType())
	assert.Equal(t, SnapshotArchivedEvent, SnapshotArchived{}.GetType())
	assert.Equal(t, ConflictDetectedEvent, ConflictDetected{}.GetType())
	assert.Equal(t, ConflictResolvedEvent, ConflictResolved{}.GetType())
}

func TestStateChanged_JSONSerialization(t *testing.T) {
	original := &StateChanged{
		BaseEvent:   NewBaseEvent(StateChangedEvent, "wf-123"),
		Version:     4,
		VersionID:   "ver-456",
		ChangedBy:   "agent-coordinator",
		Checksum:    "deadbeef",
		ChangeTypes: []models.ChangeType{models.ChangeTypeTaskUpdate},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"state.changed"`)
	assert.Contains(t, string(jsonData), `"version":4`)
	assert.Contains(t, string(jsonData), `"changed_by":"agent-coordinator"`)

	var deserialized StateChanged

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.Type, deserialized.Type)
	assert.Equal(t, original.Version, deserialized.Version)
	assert.Equal(t, original.VersionID, deserialized.VersionID)
	assert.Equal(t, original.ChangeTypes, deserialized.ChangeTypes)
}

func TestConflictDetected_JSONSerialization(t *testing.T) {
	original := &ConflictDetected{
		BaseEvent:  NewBaseEvent(ConflictDetectedEvent, "wf-123"),
		ConflictID: "conflict-1",
		Versions:   []int64{2, 3},
		Resolution: models.ResolutionLastWriteWins,
		Changes: []models.StateChange{
			{WorkflowID: "wf-123", Type: models.ChangeTypeWorkflowStatus, Path: "status", OldValue: "running", NewValue: "failed"},
		},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"conflict.detected"`)
	assert.Contains(t, string(jsonData), `"versions":[2,3]`)

	var deserialized ConflictDetected

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.ConflictID, deserialized.ConflictID)
	assert.Equal(t, original.Versions, deserialized.Versions)
	require.Len(t, deserialized.Changes, 1)
	assert.Equal(t, models.ChangeTypeWorkflowStatus, deserialized.Changes[0].Type)
	assert.Equal(t, "running", deserialized.Changes[0].OldValue)
}
