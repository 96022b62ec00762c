package models

import "time"

// TaskStatus represents the lifecycle state of a single agent task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// AgentTask is one unit of work tracked inside a workflow state. Tasks are
// embedded in WorkflowState.Tasks and versioned along with it.
type AgentTask struct {
	ID           string         `json:"id"   validate:"required"`
	Type         string         `json:"type" validate:"required"`
	Status       TaskStatus     `json:"status,omitempty"`
	Priority     Priority       `json:"priority,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	WorkflowID   string         `json:"workflow_id,omitempty"`
	ParentTaskID string         `json:"parent_task_id,omitempty"`
	AssignedTo   string         `json:"assigned_to,omitempty"` // agent instance id
	RetryCount   int            `json:"retry_count,omitempty"`
	MaxRetries   int            `json:"max_retries,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Task types understood by the dispatch surface. Each maps to one state-store
// operation; anything else is rejected with an unknown task type error.
const (
	TaskTypePersistState    = "persist-state"
	TaskTypeGetState        = "get-state"
	TaskTypeGetHistory      = "get-history"
	TaskTypeSubscribeState  = "subscribe-state"
	TaskTypeCreateSnapshot  = "create-snapshot"
	TaskTypeRestoreSnapshot = "restore-snapshot"
	TaskTypeListConflicts   = "list-conflicts"
)

// TaskResultStatus marks a dispatched task as succeeded or failed.
type TaskResultStatus string

const (
	TaskResultSuccess TaskResultStatus = "success"
	TaskResultFailure TaskResultStatus = "failure"
)

// TaskResult is the uniform envelope returned by the dispatch surface.
// Failures carry a message in Error and no Result; successes the reverse.
type TaskResult struct {
	Status TaskResultStatus `json:"status"`
	Result any              `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// SuccessResult wraps a payload in a success envelope.
func SuccessResult(result any) *TaskResult {
	return &TaskResult{Status: TaskResultSuccess, Result: result}
}

// FailureResult wraps an error message in a failure envelope.
func FailureResult(message string) *TaskResult {
	return &TaskResult{Status: TaskResultFailure, Error: message}
}
