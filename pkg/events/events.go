// Package events defines event types and structures for state store notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/helaix/flowstate/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "flowstate.events"            // Topic for workflow state change events
const SnapshotTopic = "flowstate.snapshots" // Topic for snapshot lifecycle events
const ConflictTopic = "flowstate.conflicts" // Topic for conflict detection events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// State lifecycle events.
	StateChangedEvent  EventType = "state.changed"
	StateRestoredEvent EventType = "state.restored"

	// Snapshot lifecycle events.
	SnapshotCreatedEvent  EventType = "snapshot.created"
	SnapshotArchivedEvent EventType = "snapshot.archived"

	// Conflict events.
	ConflictDetectedEvent EventType = "conflict.detected"
	ConflictResolvedEvent EventType = "conflict.resolved"
)

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case SnapshotCreatedEvent, SnapshotArchivedEvent:
		return SnapshotTopic
	case ConflictDetectedEvent, ConflictResolvedEvent:
		return ConflictTopic
	default:
		return Topic
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StateChanged is published after every successful state persist. Version is
// the number the write was assigned; ChangeTypes summarizes what the write
// touched so subscribers can filter without loading the state.
type StateChanged struct {
	BaseEvent

	Version     int64               `json:"version"`
	VersionID   string              `json:"version_id"`
	ChangedBy   string              `json:"changed_by"`
	Checksum    string              `json:"checksum"`
	ChangeTypes []models.ChangeType `json:"change_types,omitempty"`
}

func (s StateChanged) GetType() EventType {
	return StateChangedEvent
}

// StateRestored is published when a snapshot is restored as a new version.
type StateRestored struct {
	BaseEvent

	SnapshotID string `json:"snapshot_id"`
	Version    int64  `json:"version"`
	VersionID  string `json:"version_id"`
	RestoredBy string `json:"restored_by"`
}

func (s StateRestored) GetType() EventType {
	return StateRestoredEvent
}

type SnapshotCreated struct {
	BaseEvent

	SnapshotID  string `json:"snapshot_id"`
	CreatedBy   string `json:"created_by"`
	Description string `json:"description,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	Checksum    string `json:"checksum"`
}

func (s SnapshotCreated) GetType() EventType {
	return SnapshotCreatedEvent
}

// SnapshotArchived is published when the archiver offloads a snapshot's
// payload to cold storage.
type SnapshotArchived struct {
	BaseEvent

	SnapshotID      string `json:"snapshot_id"`
	ArchiveLocation string `json:"archive_location"`
	SizeBytes       int64  `json:"size_bytes"`
}

func (s SnapshotArchived) GetType() EventType {
	return SnapshotArchivedEvent
}

type ConflictDetected struct {
	BaseEvent

	ConflictID string                    `json:"conflict_id"`
	Versions   []int64                   `json:"versions"`
	Resolution models.ResolutionStrategy `json:"resolution"`
	Changes    []models.StateChange      `json:"changes,omitempty"`
}

func (c ConflictDetected) GetType() EventType {
	return ConflictDetectedEvent
}

type ConflictResolved struct {
	BaseEvent

	ConflictID string                `json:"conflict_id"`
	Status     models.ConflictStatus `json:"status"`
	ResolvedBy string                `json:"resolved_by,omitempty"`
}

func (c ConflictResolved) GetType() EventType {
	return ConflictResolvedEvent
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}
