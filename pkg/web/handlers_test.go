package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/persistence/memory"
	"github.com/helaix/flowstate/pkg/statestore"
	"github.com/helaix/flowstate/pkg/web"
)

func setupTestHandlers(t *testing.T) (*web.APIHandlers, *statestore.Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := statestore.NewManager(memory.NewPersistence(), nil, nil, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(store, validate)

	return handlers, store
}

func setupTestApp(t *testing.T) (*fiber.App, *statestore.Manager) {
	t.Helper()

	handlers, store := setupTestHandlers(t)
	app := fiber.New()

	w := app.Group("/workflows")
	w.Post("/:id/state", handlers.PersistState)
	w.Get("/:id/state", handlers.GetState)
	w.Get("/:id/history", handlers.GetHistory)
	w.Post("/:id/subscriptions", handlers.Subscribe)
	w.Get("/:id/subscriptions", handlers.ListSubscriptions)
	w.Get("/:id/conflicts", handlers.ListConflicts)
	w.Post("/:id/snapshots", handlers.CreateSnapshot)
	w.Get("/:id/snapshots", handlers.ListSnapshots)
	w.Post("/:id/snapshots/:snapshotId/restore", handlers.RestoreSnapshot)

	app.Post("/conflicts/:conflictId/resolve", handlers.ResolveConflict)
	app.Post("/tasks", handlers.ProcessTask)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func testState(workflowID string) *models.WorkflowState {
	now := time.Now().UTC()

	return &models.WorkflowState{
		ID:     workflowID,
		Name:   "Release pipeline",
		Status: models.WorkflowStatusRunning,
		Progress: models.WorkflowProgress{
			TotalTasks: 1,
		},
		Tasks: map[string]*models.AgentTask{
			"task-1": {ID: "task-1", Type: "build", Status: models.TaskStatusRunning},
		},
		Agents:    map[string]string{"builder": "agent-1"},
		Metadata:  map[string]any{"trigger": "push"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAPIHandlers_PersistState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful persist",
			requestBody: web.PersistStateRequest{
				State:       testState("wf-1"),
				Author:      "orchestrator",
				Description: "initial state",
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				var version models.StateVersion
				err := json.Unmarshal(body, &version)
				require.NoError(t, err)
				assert.Equal(t, "wf-1", version.WorkflowID)
				assert.Equal(t, int64(1), version.Version)
				assert.Equal(t, "orchestrator", version.CreatedBy)
				assert.Equal(t, "initial state", version.Description)
				assert.Len(t, version.Checksum, 64)
				require.NotNil(t, version.State)
				assert.Equal(t, "Release pipeline", version.State.Name)
			},
		},
		{
			name: "missing state",
			requestBody: web.PersistStateRequest{
				Author: "orchestrator",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid state content",
			requestBody: web.PersistStateRequest{
				State: &models.WorkflowState{ID: "wf-1", Status: models.WorkflowStatusRunning},
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "state id does not match route",
			requestBody: web.PersistStateRequest{
				State: testState("wf-other"),
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "invalid JSON",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			var (
				body []byte
				err  error
			)

			if raw, ok := tt.requestBody.(string); ok {
				body = []byte(raw)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/state", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.validateResult != nil {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_PersistState_AppendsVersions(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	var first models.StateVersion

	for i, name := range []string{"Release pipeline", "Release pipeline v2"} {
		state := testState("wf-1")
		state.Name = name

		body, err := json.Marshal(web.PersistStateRequest{State: state, Author: "orchestrator"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/state", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var version models.StateVersion
		require.NoError(t, json.Unmarshal(raw, &version))
		assert.Equal(t, int64(i+1), version.Version)

		if i == 0 {
			first = version
		} else {
			assert.Equal(t, first.ID, version.ParentVersion)
		}
	}
}

func TestAPIHandlers_GetState(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, store *statestore.Manager) *models.StateVersion {
		t.Helper()

		ctx := context.Background()

		v1, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "orchestrator", "")
		require.NoError(t, err)

		updated := testState("wf-1")
		updated.Status = models.WorkflowStatusCompleted

		_, err = store.PersistWorkflowState(ctx, "wf-1", updated, "orchestrator", "")
		require.NoError(t, err)

		return v1
	}

	t.Run("head by default", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		seed(t, store)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/state", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var state models.WorkflowState
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
		assert.Equal(t, models.WorkflowStatusCompleted, state.Status)
	})

	t.Run("by version number", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		seed(t, store)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/state?version=1", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var state models.WorkflowState
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
		assert.Equal(t, models.WorkflowStatusRunning, state.Status)
	})

	t.Run("by version id", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		v1 := seed(t, store)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/state?id="+v1.ID, nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var state models.WorkflowState
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
		assert.Equal(t, models.WorkflowStatusRunning, state.Status)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		t.Parallel()

		app, _ := setupTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-missing/state", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown version number", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		seed(t, store)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/state?version=99", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed version number", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		seed(t, store)

		req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/state?version=latest", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPIHandlers_GetHistory(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)
	ctx := context.Background()

	for _, status := range []models.WorkflowStatus{models.WorkflowStatusRunning, models.WorkflowStatusCompleted} {
		state := testState("wf-1")
		state.Status = status

		_, err := store.PersistWorkflowState(ctx, "wf-1", state, "orchestrator", "")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/history", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response struct {
		WorkflowID string                 `json:"workflow_id"`
		Versions   []*models.StateVersion `json:"versions"`
		TotalCount int                    `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))

	assert.Equal(t, "wf-1", response.WorkflowID)
	assert.Equal(t, 2, response.TotalCount)
	require.Len(t, response.Versions, 2)
	assert.Equal(t, int64(2), response.Versions[0].Version, "most recent version comes first")
	assert.Equal(t, int64(1), response.Versions[1].Version)
}

func TestAPIHandlers_GetHistory_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-missing/history", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response struct {
		Versions   []*models.StateVersion `json:"versions"`
		TotalCount int                    `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, 0, response.TotalCount)
	assert.Empty(t, response.Versions)
}

func TestAPIHandlers_Subscribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful subscription",
			requestBody: web.SubscribeRequest{
				AgentID:    "agent-1",
				EventTypes: []models.ChangeType{models.ChangeTypeTaskUpdate},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				var subscription models.StateSubscription
				err := json.Unmarshal(body, &subscription)
				require.NoError(t, err)
				assert.NotEmpty(t, subscription.ID)
				assert.Equal(t, "wf-1", subscription.WorkflowID)
				assert.Equal(t, "agent-1", subscription.AgentID)
				assert.Equal(t, []models.ChangeType{models.ChangeTypeTaskUpdate}, subscription.EventTypes)
			},
		},
		{
			name: "all change types by default",
			requestBody: web.SubscribeRequest{
				AgentID: "agent-2",
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				var subscription models.StateSubscription
				err := json.Unmarshal(body, &subscription)
				require.NoError(t, err)
				assert.Empty(t, subscription.EventTypes)
			},
		},
		{
			name:           "missing agent id",
			requestBody:    web.SubscribeRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			var (
				body []byte
				err  error
			)

			if raw, ok := tt.requestBody.(string); ok {
				body = []byte(raw)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/subscriptions", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.validateResult != nil {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_ListSubscriptions(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)
	ctx := context.Background()

	for _, agentID := range []string{"agent-1", "agent-2"} {
		_, err := store.SubscribeToStateChanges(ctx, "wf-1", agentID, nil)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/subscriptions", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response struct {
		Subscriptions []*models.StateSubscription `json:"subscriptions"`
		TotalCount    int                         `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))

	assert.Equal(t, 2, response.TotalCount)
	require.Len(t, response.Subscriptions, 2)
	assert.Equal(t, "agent-1", response.Subscriptions[0].AgentID)
	assert.Equal(t, "agent-2", response.Subscriptions[1].AgentID)
}

func TestAPIHandlers_Snapshots(t *testing.T) {
	t.Parallel()

	t.Run("create and list", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		ctx := context.Background()

		_, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "orchestrator", "")
		require.NoError(t, err)

		body, err := json.Marshal(web.CreateSnapshotRequest{Description: "before rollout", CreatedBy: "operator"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/snapshots", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var snapshot models.StateSnapshot
		require.NoError(t, json.Unmarshal(raw, &snapshot))
		assert.NotEmpty(t, snapshot.ID)
		assert.Equal(t, "wf-1", snapshot.WorkflowID)
		assert.Equal(t, "before rollout", snapshot.Description)
		assert.Equal(t, "operator", snapshot.CreatedBy)
		assert.Len(t, snapshot.Checksum, 64)
		assert.Positive(t, snapshot.SizeBytes)

		listReq := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/snapshots", nil)

		listResp, err := app.Test(listReq)
		require.NoError(t, err)

		defer func() { _ = listResp.Body.Close() }()

		require.Equal(t, http.StatusOK, listResp.StatusCode)

		var response struct {
			Snapshots  []*models.StateSnapshot `json:"snapshots"`
			TotalCount int                     `json:"total_count"`
		}
		require.NoError(t, json.NewDecoder(listResp.Body).Decode(&response))
		assert.Equal(t, 1, response.TotalCount)
		require.Len(t, response.Snapshots, 1)
		assert.Equal(t, snapshot.ID, response.Snapshots[0].ID)
	})

	t.Run("create without body", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		ctx := context.Background()

		_, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "orchestrator", "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/snapshots", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("create for unknown workflow", func(t *testing.T) {
		t.Parallel()

		app, _ := setupTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-missing/snapshots", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("restore appends a version", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		ctx := context.Background()

		_, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "orchestrator", "")
		require.NoError(t, err)

		snapshot, err := store.CreateStateSnapshot(ctx, "wf-1", "before rollout", "operator")
		require.NoError(t, err)

		body, err := json.Marshal(web.RestoreSnapshotRequest{RestoredBy: "operator"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/snapshots/"+snapshot.ID+"/restore", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var version models.StateVersion
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
		assert.Equal(t, int64(2), version.Version)
		assert.Equal(t, "operator", version.CreatedBy)
		assert.Contains(t, version.Description, snapshot.ID)
	})

	t.Run("restore unknown snapshot", func(t *testing.T) {
		t.Parallel()

		app, store := setupTestApp(t)
		ctx := context.Background()

		_, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "orchestrator", "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/snapshots/snap-missing/restore", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPIHandlers_Conflicts(t *testing.T) {
	t.Parallel()

	app, store := setupTestApp(t)
	ctx := context.Background()

	_, err := store.PersistWorkflowState(ctx, "wf-1", testState("wf-1"), "agent-1", "")
	require.NoError(t, err)

	// A write carrying an older timestamp than the head still succeeds but
	// queues a conflict.
	stale := testState("wf-1")
	stale.UpdatedAt = stale.UpdatedAt.Add(-2 * time.Hour)

	body, err := json.Marshal(web.PersistStateRequest{State: stale, Author: "agent-2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/state", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	listReq := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/conflicts", nil)

	listResp, err := app.Test(listReq)
	require.NoError(t, err)

	raw, err := io.ReadAll(listResp.Body)
	require.NoError(t, err)
	require.NoError(t, listResp.Body.Close())
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var response struct {
		Conflicts  []*models.StateConflict `json:"conflicts"`
		TotalCount int                     `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	require.Equal(t, 1, response.TotalCount)

	conflict := response.Conflicts[0]
	assert.Equal(t, models.ConflictStatusPending, conflict.Status)
	assert.Equal(t, models.ResolutionLastWriteWins, conflict.Resolution)
	assert.Equal(t, []int64{1, 2}, conflict.Versions)

	resolveBody, err := json.Marshal(web.ResolveConflictRequest{ResolvedBy: "reconciler"})
	require.NoError(t, err)

	resolveReq := httptest.NewRequest(http.MethodPost, "/conflicts/"+conflict.ID+"/resolve", bytes.NewBuffer(resolveBody))
	resolveReq.Header.Set("Content-Type", "application/json")

	resolveResp, err := app.Test(resolveReq)
	require.NoError(t, err)
	require.NoError(t, resolveResp.Body.Close())
	assert.Equal(t, http.StatusNoContent, resolveResp.StatusCode)

	// The queue only reports pending conflicts, so the resolved one is gone.
	afterReq := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/conflicts", nil)

	afterResp, err := app.Test(afterReq)
	require.NoError(t, err)

	defer func() { _ = afterResp.Body.Close() }()

	require.Equal(t, http.StatusOK, afterResp.StatusCode)

	var after struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(afterResp.Body).Decode(&after))
	assert.Equal(t, 0, after.TotalCount)
}

func TestAPIHandlers_ResolveConflict_Unknown(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/conflicts/conflict-missing/resolve", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ProcessTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    interface{}
		expectedStatus int
		expectedResult models.TaskResultStatus
		validateResult func(t *testing.T, result *models.TaskResult)
	}{
		{
			name: "persist state task",
			requestBody: models.AgentTask{
				ID:         "task-1",
				Type:       models.TaskTypePersistState,
				WorkflowID: "wf-1",
				AssignedTo: "agent-1",
				Payload: map[string]any{
					"state": testState("wf-1"),
				},
			},
			expectedStatus: http.StatusOK,
			expectedResult: models.TaskResultSuccess,
			validateResult: func(t *testing.T, result *models.TaskResult) {
				t.Helper()

				version, ok := result.Result.(map[string]any)
				require.True(t, ok, "result must decode as a version object")
				assert.InDelta(t, float64(1), version["version"], 0.001)
				assert.Equal(t, "wf-1", version["workflow_id"])
			},
		},
		{
			name: "get state for unknown workflow succeeds with null result",
			requestBody: models.AgentTask{
				ID:      "task-2",
				Type:    models.TaskTypeGetState,
				Payload: map[string]any{"workflow_id": "wf-missing"},
			},
			expectedStatus: http.StatusOK,
			expectedResult: models.TaskResultSuccess,
			validateResult: func(t *testing.T, result *models.TaskResult) {
				t.Helper()
				assert.Nil(t, result.Result)
			},
		},
		{
			name: "unknown task type",
			requestBody: models.AgentTask{
				ID:   "task-3",
				Type: "espresso",
			},
			expectedStatus: http.StatusOK,
			expectedResult: models.TaskResultFailure,
			validateResult: func(t *testing.T, result *models.TaskResult) {
				t.Helper()
				assert.Equal(t, "Unknown task type: espresso", result.Error)
			},
		},
		{
			name: "malformed payload",
			requestBody: models.AgentTask{
				ID:      "task-4",
				Type:    models.TaskTypePersistState,
				Payload: map[string]any{"state": "not an object"},
			},
			expectedStatus: http.StatusOK,
			expectedResult: models.TaskResultFailure,
		},
		{
			name:           "invalid JSON",
			requestBody:    "{not json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := setupTestApp(t)

			var (
				body []byte
				err  error
			)

			if raw, ok := tt.requestBody.(string); ok {
				body = []byte(raw)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			require.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus != http.StatusOK {
				return
			}

			var result models.TaskResult
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
			assert.Equal(t, tt.expectedResult, result.Status)

			if tt.validateResult != nil {
				tt.validateResult(t, &result)
			}
		})
	}
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response struct {
		Status   string `json:"status"`
		Checkers struct {
			Persistence string `json:"persistence"`
		} `json:"checkers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "ok", response.Checkers.Persistence)
}
