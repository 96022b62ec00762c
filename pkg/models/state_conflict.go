package models

import "time"

// ChangeType classifies what part of a workflow state a change touched.
type ChangeType string

const (
	ChangeTypeTaskUpdate     ChangeType = "task-update"
	ChangeTypeAgentStatus    ChangeType = "agent-status"
	ChangeTypeWorkflowStatus ChangeType = "workflow-status"
	ChangeTypeMetadataUpdate ChangeType = "metadata-update"
)

// StateChange is one field-level difference between two workflow states. It is
// the payload unit for change notifications and conflict records.
type StateChange struct {
	WorkflowID string     `json:"workflow_id"`
	Type       ChangeType `json:"type"`
	Path       string     `json:"path"` // dotted path, e.g. "tasks.task-1.status"
	OldValue   any        `json:"old_value,omitempty"`
	NewValue   any        `json:"new_value,omitempty"`
	AgentID    string     `json:"agent_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ResolutionStrategy names how a detected conflict is (to be) resolved.
type ResolutionStrategy string

const (
	ResolutionLastWriteWins ResolutionStrategy = "last-write-wins"
	ResolutionMerge         ResolutionStrategy = "merge"
	ResolutionManual        ResolutionStrategy = "manual"
)

// ConflictStatus tracks a conflict record through its queue lifecycle.
type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "pending"
	ConflictStatusResolved ConflictStatus = "resolved"
	ConflictStatusFailed   ConflictStatus = "failed"
)

// StateConflict records a concurrent-modification suspicion: a write whose
// state carried an older last-modified timestamp than the version it replaced.
// Detection is advisory; the write that raised it has already been accepted
// under last-write-wins. Versions holds the version numbers involved, ordered
// [stale head, winning write].
type StateConflict struct {
	ID         string             `json:"id"`
	WorkflowID string             `json:"workflow_id"`
	Versions   []int64            `json:"versions,omitempty"`
	Changes    []StateChange      `json:"changes,omitempty"`
	DetectedAt time.Time          `json:"detected_at"`
	Resolution ResolutionStrategy `json:"resolution"`
	Status     ConflictStatus     `json:"status"`
}
