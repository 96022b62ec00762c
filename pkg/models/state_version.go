package models

import "time"

// StateVersion is one immutable entry in a workflow's append-only version log.
// Version numbers start at 1 and increase by exactly one per persisted write;
// the storage layer assigns them atomically so concurrent writers can never
// mint the same number twice.
type StateVersion struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Version    int64          `json:"version"     validate:"min=1"`
	State      *WorkflowState `json:"state"       validate:"required"`
	CreatedAt  time.Time      `json:"created_at"`
	CreatedBy  string         `json:"created_by,omitempty"` // agent id, "system", or "snapshot-restore"
	// ParentVersion is the id of the previous version, empty for version 1.
	ParentVersion string `json:"parent_version,omitempty"`
	Description   string `json:"description,omitempty"`
	// Checksum is the lowercase hex SHA-256 of the canonical JSON encoding of
	// State, recorded at persist time for integrity checks.
	Checksum string `json:"checksum,omitempty"`
}
