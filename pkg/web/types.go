// Package web provides HTTP request and response types for the state store API.
package web

import "github.com/helaix/flowstate/pkg/models"

// PersistStateRequest represents the request body for persisting a new state
// version. The state's content is checked by the store's own validator, which
// reports every problem at once; the web layer only requires that a state is
// present in the envelope.
type PersistStateRequest struct {
	State       *models.WorkflowState `json:"state"                 validate:"required,structonly"`
	Author      string                `json:"author,omitempty"`
	Description string                `json:"description,omitempty"`
}

// SubscribeRequest represents the request body for subscribing an agent to a
// workflow's state changes. An empty event type list subscribes to every
// change type.
type SubscribeRequest struct {
	AgentID    string              `json:"agent_id"              validate:"required"`
	EventTypes []models.ChangeType `json:"event_types,omitempty"`
}

// CreateSnapshotRequest represents the request body for capturing a snapshot
// of a workflow's current state. All fields are optional.
type CreateSnapshotRequest struct {
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// RestoreSnapshotRequest represents the request body for restoring a workflow
// from a snapshot.
type RestoreSnapshotRequest struct {
	RestoredBy string `json:"restored_by,omitempty"`
}

// ResolveConflictRequest represents the request body for marking a queued
// conflict as reconciled.
type ResolveConflictRequest struct {
	ResolvedBy string `json:"resolved_by,omitempty"`
}
