package statestore

import (
	"context"
	"log/slog"

	"github.com/helaix/flowstate/pkg/eventbus"
	"github.com/helaix/flowstate/pkg/events"
	"github.com/helaix/flowstate/pkg/models"
)

// BusDelivery notifies subscribers by publishing one StateChanged event per
// subscription on the event bus. The target agent and subscription ids travel
// in the event metadata so bus consumers can route to the right agent.
type BusDelivery struct {
	publisher eventbus.EventPublisher
}

// NewBusDelivery creates a delivery port backed by an event bus publisher.
func NewBusDelivery(publisher eventbus.EventPublisher) *BusDelivery {
	return &BusDelivery{publisher: publisher}
}

// Deliver publishes the notification, keyed by workflow id so all events of
// one workflow stay ordered on partitioned transports.
func (d *BusDelivery) Deliver(ctx context.Context, subscription *models.StateSubscription, version *models.StateVersion, changes []models.StateChange) error {
	event := events.StateChanged{
		BaseEvent:   events.NewBaseEvent(events.StateChangedEvent, version.WorkflowID),
		Version:     version.Version,
		VersionID:   version.ID,
		ChangedBy:   version.CreatedBy,
		Checksum:    version.Checksum,
		ChangeTypes: changeTypes(changes),
	}
	event.Metadata["agent_id"] = subscription.AgentID
	event.Metadata["subscription_id"] = subscription.ID

	return d.publisher.Publish(ctx, version.WorkflowID, event)
}

// LogDelivery writes notifications to the log instead of a transport. It is
// the fallback when no event bus is configured, and keeps single-process
// deployments observable.
type LogDelivery struct {
	logger *slog.Logger
}

// NewLogDelivery creates a log-only delivery port.
func NewLogDelivery(logger *slog.Logger) *LogDelivery {
	return &LogDelivery{logger: logger}
}

// Deliver logs the notification and always succeeds.
func (d *LogDelivery) Deliver(ctx context.Context, subscription *models.StateSubscription, version *models.StateVersion, changes []models.StateChange) error {
	d.logger.InfoContext(ctx, "state change notification",
		"workflow_id", version.WorkflowID,
		"agent_id", subscription.AgentID,
		"version", version.Version,
		"changes", len(changes))

	return nil
}

// changeTypes collapses a change list to its distinct types, first occurrence
// order.
func changeTypes(changes []models.StateChange) []models.ChangeType {
	seen := make(map[models.ChangeType]bool, len(changes))
	types := make([]models.ChangeType, 0, len(changes))

	for _, change := range changes {
		if seen[change.Type] {
			continue
		}

		seen[change.Type] = true
		types = append(types, change.Type)
	}

	return types
}
