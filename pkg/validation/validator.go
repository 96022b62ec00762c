// Package validation implements structural validation and content checksums
// for workflow states. Validation is a pure function: all checks run on every
// call and every problem is reported at once, so callers never need to fix
// errors one at a time.
package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/helaix/flowstate/pkg/models"
)

// Result is the outcome of validating a candidate workflow state. Warnings
// never make a state invalid; they flag suspicious but accepted input such as
// progress counters that drifted from the task map.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Checksum string   `json:"checksum,omitempty"`
}

// Validator checks workflow states before they are persisted.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the standard tag rules registered.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// tag violations already reported by the explicit checks below; the tag pass
// only adds errors for namespaces outside this set (nested tasks, edges).
var coveredNamespaces = map[string]bool{
	"WorkflowState.ID":                      true,
	"WorkflowState.Name":                    true,
	"WorkflowState.Status":                  true,
	"WorkflowState.Tasks":                   true,
	"WorkflowState.Agents":                  true,
	"WorkflowState.Progress.TotalTasks":     true,
	"WorkflowState.Progress.CompletedTasks": true,
	"WorkflowState.Progress.FailedTasks":    true,
	"WorkflowState.Progress.ActiveAgents":   true,
}

// ValidateState checks the candidate state against the given workflow id and
// returns every problem found. The checksum is computed only for valid states.
func (v *Validator) ValidateState(workflowID string, state *models.WorkflowState) *Result {
	result := &Result{Valid: true}

	if workflowID == "" {
		result.addError("workflow id is required")
	}

	if state == nil {
		result.addError("state is required")

		return result
	}

	if state.ID == "" {
		result.addError("state id is required")
	} else if workflowID != "" && state.ID != workflowID {
		result.addError(fmt.Sprintf("state id %q does not match workflow id %q", state.ID, workflowID))
	}

	if state.Name == "" {
		result.addError("name is required")
	}

	if state.Status == "" {
		result.addError("status is required")
	} else if !state.Status.IsValid() {
		result.addError(fmt.Sprintf("invalid status %q, must be one of %v", state.Status, models.KnownWorkflowStatuses()))
	}

	if state.Tasks == nil {
		result.addError("tasks map is required")
	}

	if state.Agents == nil {
		result.addError("agents map is required")
	}

	checkCounter(result, "total_tasks", state.Progress.TotalTasks)
	checkCounter(result, "completed_tasks", state.Progress.CompletedTasks)
	checkCounter(result, "failed_tasks", state.Progress.FailedTasks)
	checkCounter(result, "active_agents", state.Progress.ActiveAgents)

	v.checkTags(result, state)
	checkProgressDrift(result, state)

	if result.Valid {
		checksum, err := Checksum(state)
		if err != nil {
			result.addError(fmt.Sprintf("checksum computation failed: %s", err))
		} else {
			result.Checksum = checksum
		}
	}

	return result
}

// checkTags runs the struct tag rules and appends violations not already
// reported by the explicit checks, e.g. an embedded task missing its id.
func (v *Validator) checkTags(result *Result, state *models.WorkflowState) {
	err := v.validate.Struct(state)
	if err == nil {
		return
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result.addError(fmt.Sprintf("structural validation failed: %s", err))

		return
	}

	for _, fieldErr := range validationErrors {
		if coveredNamespaces[fieldErr.Namespace()] {
			continue
		}

		result.addError(fmt.Sprintf("field %q failed the %q rule", fieldErr.Namespace(), fieldErr.Tag()))
	}
}

func checkCounter(result *Result, name string, value int) {
	if value < 0 {
		result.addError(fmt.Sprintf("progress.%s must be non-negative, got %d", name, value))
	}
}

// checkProgressDrift warns when the progress counters disagree with the task
// map. Drift is accepted: counters are caller-maintained and some callers
// update them asynchronously.
func checkProgressDrift(result *Result, state *models.WorkflowState) {
	if state.Tasks == nil {
		return
	}

	if state.Progress.TotalTasks >= 0 && state.Progress.TotalTasks != len(state.Tasks) {
		result.addWarning(fmt.Sprintf("progress.total_tasks is %d but the state holds %d tasks",
			state.Progress.TotalTasks, len(state.Tasks)))
	}

	completed := 0
	failed := 0

	for _, task := range state.Tasks {
		switch task.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}

	if state.Progress.CompletedTasks >= 0 && state.Progress.CompletedTasks != completed {
		result.addWarning(fmt.Sprintf("progress.completed_tasks is %d but %d tasks are completed",
			state.Progress.CompletedTasks, completed))
	}

	if state.Progress.FailedTasks >= 0 && state.Progress.FailedTasks != failed {
		result.addWarning(fmt.Sprintf("progress.failed_tasks is %d but %d tasks are failed",
			state.Progress.FailedTasks, failed))
	}
}

func (r *Result) addError(message string) {
	r.Valid = false
	r.Errors = append(r.Errors, message)
}

func (r *Result) addWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Checksum returns the lowercase hex SHA-256 digest of the state's canonical
// JSON encoding. encoding/json writes struct fields in declaration order and
// sorts map keys, so deep-equal states always produce the same digest.
func Checksum(state *models.WorkflowState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to serialize state for checksum: %w", err)
	}

	return ChecksumBytes(data), nil
}

// ChecksumBytes returns the lowercase hex SHA-256 digest of an already
// serialized payload.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
