package models

import "time"

// StateSubscription registers an agent's interest in changes to one workflow.
// An empty EventTypes set means the agent wants every change type.
type StateSubscription struct {
	ID             string       `json:"id"`
	AgentID        string       `json:"agent_id"    validate:"required"`
	WorkflowID     string       `json:"workflow_id" validate:"required"`
	EventTypes     []ChangeType `json:"event_types,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	LastNotifiedAt *time.Time   `json:"last_notified_at,omitempty"`
}

// Matches reports whether a change of the given type passes the subscription's
// filter.
func (s *StateSubscription) Matches(changeType ChangeType) bool {
	if len(s.EventTypes) == 0 {
		return true
	}

	for _, t := range s.EventTypes {
		if t == changeType {
			return true
		}
	}

	return false
}
