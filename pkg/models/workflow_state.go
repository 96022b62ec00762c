// Package models defines the core domain models for versioned workflow state.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// KnownWorkflowStatuses lists every valid lifecycle status.
func KnownWorkflowStatuses() []WorkflowStatus {
	return []WorkflowStatus{
		WorkflowStatusPending,
		WorkflowStatusRunning,
		WorkflowStatusCompleted,
		WorkflowStatusFailed,
		WorkflowStatusCancelled,
	}
}

// IsValid reports whether the status is one of the defined lifecycle values.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusRunning, WorkflowStatusCompleted,
		WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Priority classifies the urgency of a workflow or task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// WorkflowState is the mutable domain object being versioned. The store never
// hands out aliases into persisted history: states are deep-copied on write
// and on read (see Clone).
type WorkflowState struct {
	ID           string                `json:"id"          validate:"required"`
	Name         string                `json:"name"        validate:"required"`
	Status       WorkflowStatus        `json:"status"      validate:"required,oneof=pending running completed failed cancelled"`
	Priority     Priority              `json:"priority,omitempty"`
	Progress     WorkflowProgress      `json:"progress"`
	Context      WorkflowContext       `json:"context"`
	Tasks        map[string]*AgentTask `json:"tasks"       validate:"required,dive"` // task id -> task; ids unique by construction
	Agents       map[string]string     `json:"agents"      validate:"required"`      // logical role -> agent instance id
	Dependencies []WorkflowDependency  `json:"dependencies,omitempty" validate:"omitempty,dive"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	// UpdatedAt is the caller-owned last-modified timestamp. The conflict
	// detector compares it against the head version's to spot stale writes;
	// the store never overwrites it.
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowProgress summarizes task completion for a workflow. The counters are
// caller-maintained; the validator only checks they are non-negative and warns
// (never errors) when they drift from the task map.
type WorkflowProgress struct {
	TotalTasks        int     `json:"total_tasks"     validate:"min=0"`
	CompletedTasks    int     `json:"completed_tasks" validate:"min=0"`
	FailedTasks       int     `json:"failed_tasks"    validate:"min=0"`
	ActiveAgents      int     `json:"active_agents"   validate:"min=0"`
	AvgTaskDurationMs float64 `json:"avg_task_duration_ms,omitempty"`
	ErrorRate         float64 `json:"error_rate,omitempty"`
}

// WorkflowContext carries the loosely-typed execution context of a workflow.
// Keys inside Metadata follow documented conventions, not a static schema.
type WorkflowContext struct {
	User     string         `json:"user,omitempty"`
	IssueRef string         `json:"issue_ref,omitempty"`
	RepoRef  string         `json:"repo_ref,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DependencyType classifies a dependency edge between two tasks.
type DependencyType string

const (
	DependencyTypeCompletion DependencyType = "completion" // target may start once source completed
	DependencyTypeData       DependencyType = "data"       // target consumes source output
)

// WorkflowDependency is one ordered edge in the workflow's task graph.
type WorkflowDependency struct {
	TaskID    string         `json:"task_id"    validate:"required"`
	DependsOn string         `json:"depends_on" validate:"required"`
	Type      DependencyType `json:"type,omitempty"`
}
