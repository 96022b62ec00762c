package eventbus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/helaix/flowstate/pkg/events"
	"github.com/helaix/flowstate/pkg/otelhelper"
)

var errUnknownEventType = errors.New("unknown event type")

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		tracer:        otel.Tracer("github.com/helaix/flowstate/pkg/eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.TopicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.Topic, events.SnapshotTopic, events.ConflictTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		carrier := propagation.MapCarrier{}
		for k, v := range msg.Metadata {
			carrier[k] = v
		}

		msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

		traceCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, "statestore.consumer consume",
			attribute.String(otelhelper.WorkflowIDKey, msg.Metadata.Get(events.EventMetadataKey)),
			attribute.String(otelhelper.EventTypeKey, string(eventType)),
		)

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()
			span.End()

			continue
		}

		var event any

		switch eventType {
		case events.StateChangedEvent:
			event = &events.StateChanged{}
		case events.StateRestoredEvent:
			event = &events.StateRestored{}
		case events.SnapshotCreatedEvent:
			event = &events.SnapshotCreated{}
		case events.SnapshotArchivedEvent:
			event = &events.SnapshotArchived{}
		case events.ConflictDetectedEvent:
			event = &events.ConflictDetected{}
		case events.ConflictResolvedEvent:
			event = &events.ConflictResolved{}
		default:
			otelhelper.SetError(span, errUnknownEventType)
			msg.Nack()
			span.End()

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			otelhelper.SetError(span, err)
			msg.Nack()
			span.End()

			continue
		}

		err = handler(traceCtx, event)
		if err != nil {
			otelhelper.SetError(span, err)
			msg.Nack()
			span.End()

			continue
		}

		msg.Ack()
		span.End()
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
