// Package web provides HTTP handlers and REST API endpoints for the versioned
// workflow state store.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/helaix/flowstate/pkg/models"
	"github.com/helaix/flowstate/pkg/statestore"
)

type APIHandlers struct {
	store     *statestore.Manager
	validator *validator.Validate
}

func NewAPIHandlers(store *statestore.Manager, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		store:     store,
		validator: validator,
	}
}

// PersistState appends the submitted state as the workflow's next version.
// Stale writes still succeed; the queued conflict is visible on the conflicts
// endpoint afterwards.
func (h *APIHandlers) PersistState(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req PersistStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.store.PersistWorkflowState(c.Context(), workflowID, req.State, req.Author, req.Description)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

// GetState returns the state stored in one version of a workflow: the head by
// default, a specific one via the version (number) or id query parameter.
func (h *APIHandlers) GetState(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	selector := statestore.VersionSelector{ID: c.Query("id")}

	if versionStr := c.Query("version"); versionStr != "" {
		number, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil {
			return badRequest(c, "Invalid version number: "+versionStr)
		}

		selector.Number = number
	}

	state, err := h.store.GetWorkflowState(c.Context(), workflowID, selector)
	if err != nil {
		return handleStoreError(c, err)
	}

	if state == nil {
		return notFound(c, "Workflow state not found")
	}

	return c.JSON(state)
}

// GetHistory returns every version of a workflow, most recent first. Unknown
// workflows yield an empty list rather than an error.
func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	history, err := h.store.GetWorkflowHistory(c.Context(), workflowID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"versions":    history,
		"total_count": len(history),
	})
}

// Subscribe registers an agent for notifications about a workflow's state
// changes. Re-subscribing the same agent updates its event type filter.
func (h *APIHandlers) Subscribe(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req SubscribeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	subscription, err := h.store.SubscribeToStateChanges(c.Context(), workflowID, req.AgentID, req.EventTypes)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(subscription)
}

// ListSubscriptions returns the active subscriptions for a workflow.
func (h *APIHandlers) ListSubscriptions(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	subscriptions := h.store.Subscriptions(workflowID)

	return c.JSON(fiber.Map{
		"workflow_id":   workflowID,
		"subscriptions": subscriptions,
		"total_count":   len(subscriptions),
	})
}

// ListConflicts returns a workflow's pending conflicts, most recent first.
func (h *APIHandlers) ListConflicts(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	conflicts, err := h.store.ListConflicts(c.Context(), workflowID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"conflicts":   conflicts,
		"total_count": len(conflicts),
	})
}

// ResolveConflict marks a queued conflict as reconciled. The body is optional
// and only attributes the resolution.
func (h *APIHandlers) ResolveConflict(c fiber.Ctx) error {
	conflictID := c.Params("conflictId")
	if conflictID == "" {
		return badRequest(c, "Conflict ID is required")
	}

	var req ResolveConflictRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.store.MarkConflictResolved(c.Context(), conflictID, req.ResolvedBy)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CreateSnapshot captures the workflow's current head state as a named
// snapshot. The body is optional.
func (h *APIHandlers) CreateSnapshot(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CreateSnapshotRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	snapshot, err := h.store.CreateStateSnapshot(c.Context(), workflowID, req.Description, req.CreatedBy)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(snapshot)
}

// ListSnapshots returns a workflow's snapshots, most recent first.
func (h *APIHandlers) ListSnapshots(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	snapshots, err := h.store.ListSnapshots(c.Context(), workflowID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"snapshots":   snapshots,
		"total_count": len(snapshots),
	})
}

// RestoreSnapshot brings the workflow back to a snapshot's state by appending
// it as a new version. The body is optional and only attributes the restore.
func (h *APIHandlers) RestoreSnapshot(c fiber.Ctx) error {
	workflowID := c.Params("id")
	snapshotID := c.Params("snapshotId")

	if workflowID == "" || snapshotID == "" {
		return badRequest(c, "Workflow ID and snapshot ID are required")
	}

	var req RestoreSnapshotRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	version, err := h.store.RestoreFromSnapshot(c.Context(), workflowID, snapshotID, req.RestoredBy)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

// ProcessTask accepts a task envelope and always answers with a result
// envelope. Operation failures ride inside the envelope; only a malformed
// request body is an HTTP error.
func (h *APIHandlers) ProcessTask(c fiber.Ctx) error {
	var task models.AgentTask
	if err := c.Bind().JSON(&task); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result := h.store.ProcessTask(c.Context(), &task)

	return c.JSON(result)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	persistenceCheck := "ok"
	healthy := true

	if err := h.store.HealthCheck(c.Context()); err != nil {
		persistenceCheck = err.Error()
		healthy = false
	}

	status := "unhealthy"
	message := "Flowstate API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if healthy {
		status = "healthy"
		message = "Flowstate API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
