package statestore

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helaix/flowstate/pkg/models"
)

// Delivery transports change notifications to subscribed agents. The store
// only writes to this port; how notifications reach an agent (event bus,
// direct call, log line) is the implementation's business.
type Delivery interface {
	Deliver(ctx context.Context, subscription *models.StateSubscription, version *models.StateVersion, changes []models.StateChange) error
}

// SubscriptionRegistry tracks which agents want to hear about changes to
// which workflows. Subscriptions live in process memory: agents are expected
// to re-subscribe after a restart, the same way they re-announce presence.
type SubscriptionRegistry struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]*models.StateSubscription // workflow id -> agent id -> subscription
	delivery      Delivery
	logger        *slog.Logger
}

// NewSubscriptionRegistry creates an empty registry that notifies through the
// given delivery port.
func NewSubscriptionRegistry(logger *slog.Logger, delivery Delivery) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subscriptions: make(map[string]map[string]*models.StateSubscription),
		delivery:      delivery,
		logger:        logger,
	}
}

// Subscribe registers an agent for changes to a workflow. Subscribing again
// with the same agent updates the event type filter in place; it never
// creates a duplicate entry. An empty eventTypes set matches every change.
func (r *SubscriptionRegistry) Subscribe(workflowID, agentID string, eventTypes []models.ChangeType) *models.StateSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAgent, ok := r.subscriptions[workflowID]
	if !ok {
		byAgent = make(map[string]*models.StateSubscription)
		r.subscriptions[workflowID] = byAgent
	}

	subscription, ok := byAgent[agentID]
	if ok {
		subscription.EventTypes = slices.Clone(eventTypes)

		return subscription.Clone()
	}

	subscription = &models.StateSubscription{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		WorkflowID: workflowID,
		EventTypes: slices.Clone(eventTypes),
		CreatedAt:  time.Now().UTC(),
	}
	byAgent[agentID] = subscription

	return subscription.Clone()
}

// Subscriptions returns the active subscriptions for a workflow, ordered by
// agent id.
func (r *SubscriptionRegistry) Subscriptions(workflowID string) []*models.StateSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byAgent := r.subscriptions[workflowID]

	subscriptions := make([]*models.StateSubscription, 0, len(byAgent))
	for _, agentID := range slices.Sorted(maps.Keys(byAgent)) {
		subscriptions = append(subscriptions, byAgent[agentID].Clone())
	}

	return subscriptions
}

// Notify delivers a freshly stored version to every matching subscriber.
// Delivery failures are logged and skipped; the version is already durable
// and a notification problem must not undo or fail the write.
func (r *SubscriptionRegistry) Notify(ctx context.Context, version *models.StateVersion, changes []models.StateChange) {
	for _, subscription := range r.matching(version.WorkflowID, changes) {
		err := r.delivery.Deliver(ctx, subscription, version, changes)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to deliver state change notification",
				"error", err,
				"workflow_id", version.WorkflowID,
				"agent_id", subscription.AgentID,
				"subscription_id", subscription.ID)

			continue
		}

		r.markNotified(version.WorkflowID, subscription.AgentID)
	}
}

// matching snapshots the subscribers interested in this change set. The
// copies are taken under the read lock so delivery can run without it.
func (r *SubscriptionRegistry) matching(workflowID string, changes []models.StateChange) []*models.StateSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byAgent := r.subscriptions[workflowID]

	matching := make([]*models.StateSubscription, 0, len(byAgent))
	for _, agentID := range slices.Sorted(maps.Keys(byAgent)) {
		if subscriptionMatches(byAgent[agentID], changes) {
			matching = append(matching, byAgent[agentID].Clone())
		}
	}

	return matching
}

// subscriptionMatches applies the subscription's event type filter. A write
// with no computable deltas (a first version, or a content-identical rewrite)
// still notifies everyone: something was appended.
func subscriptionMatches(subscription *models.StateSubscription, changes []models.StateChange) bool {
	if len(subscription.EventTypes) == 0 || len(changes) == 0 {
		return true
	}

	for _, change := range changes {
		if subscription.Matches(change.Type) {
			return true
		}
	}

	return false
}

func (r *SubscriptionRegistry) markNotified(workflowID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscription, ok := r.subscriptions[workflowID][agentID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	subscription.LastNotifiedAt = &now
}
