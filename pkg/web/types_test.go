package web_test

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/web"
)

func TestPersistStateRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.PersistStateRequest
		wantErr   bool
		errFields []string
	}{
		{
			name: "valid request",
			request: web.PersistStateRequest{
				State:       testState("wf-1"),
				Author:      "orchestrator",
				Description: "initial state",
			},
			wantErr: false,
		},
		{
			name:      "missing state",
			request:   web.PersistStateRequest{Author: "orchestrator"},
			wantErr:   true,
			errFields: []string{"State"},
		},
		{
			name: "state content is not the envelope's concern",
			// The store's validator owns content checks and reports every
			// problem at once; the envelope only requires a state.
			request: web.PersistStateRequest{
				State: &models.WorkflowState{},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)

			if tt.wantErr {
				require.Error(t, err)

				var validationErrors validator.ValidationErrors
				require.True(t, errors.As(err, &validationErrors))

				errorFields := make(map[string]bool)
				for _, fieldErr := range validationErrors {
					errorFields[fieldErr.Field()] = true
				}

				for _, expectedField := range tt.errFields {
					assert.True(t, errorFields[expectedField], "Expected validation error for field %s", expectedField)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscribeRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name    string
		request web.SubscribeRequest
		wantErr bool
	}{
		{
			name: "valid request",
			request: web.SubscribeRequest{
				AgentID:    "agent-1",
				EventTypes: []models.ChangeType{models.ChangeTypeTaskUpdate},
			},
			wantErr: false,
		},
		{
			name:    "empty event types are allowed",
			request: web.SubscribeRequest{AgentID: "agent-1"},
			wantErr: false,
		},
		{
			name:    "missing agent id",
			request: web.SubscribeRequest{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
