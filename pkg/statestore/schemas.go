package statestore

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/helaix/flowstate/pkg/models"
)

// taskPayloadSchemas describes the expected payload per task type. Payloads
// are validated before dispatch so a malformed envelope fails with a readable
// message instead of a type assertion surprise inside an operation.
var taskPayloadSchemas = map[string]map[string]any{
	models.TaskTypePersistState: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"state":       map[string]any{"type": "object"},
			"author":      map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
		"required": []string{"state"},
	},
	models.TaskTypeGetState: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"version":     map[string]any{"type": "integer", "minimum": 1},
			"version_id":  map[string]any{"type": "string"},
		},
	},
	models.TaskTypeGetHistory: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
		},
	},
	models.TaskTypeSubscribeState: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"agent_id":    map[string]any{"type": "string"},
			"event_types": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	},
	models.TaskTypeCreateSnapshot: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"created_by":  map[string]any{"type": "string"},
		},
	},
	models.TaskTypeRestoreSnapshot: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"snapshot_id": map[string]any{"type": "string"},
			"restored_by": map[string]any{"type": "string"},
		},
		"required": []string{"snapshot_id"},
	},
	models.TaskTypeListConflicts: {
		"type": "object",
		"properties": map[string]any{
			"workflow_id": map[string]any{"type": "string"},
		},
	},
}

// validateTaskPayload checks the payload against the task type's schema.
// Unknown task types pass through; the dispatcher rejects those itself.
func validateTaskPayload(taskType string, payload map[string]any) error {
	schema, ok := taskPayloadSchemas[taskType]
	if !ok {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	payloadLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, payloadLoader)
	if err != nil {
		return fmt.Errorf("failed to validate task payload: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid %s payload: %s", taskType, strings.Join(descriptions, "; "))
	}

	return nil
}
