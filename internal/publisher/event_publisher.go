package publisher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/billforge/billforge/internal/domain/events"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/pubsub"
)

// Topic carries in-process domain events between services
const Topic = "domain.events"

// EventPublisher is the in-process domain-event bus used for decoupled side
// effects. It is distinct from the outbox relay: delivery is best effort and
// never crosses a process boundary.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

type eventPublisher struct {
	pubSub pubsub.Publisher
	logger *logger.Logger
}

// NewEventPublisher creates a new publisher on top of the shared pubsub
func NewEventPublisher(pubSub pubsub.PubSub, logger *logger.Logger) EventPublisher {
	return &eventPublisher{
		pubSub: pubSub,
		logger: logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("event_name", event.EventName)

	if err := p.pubSub.Publish(ctx, Topic, msg); err != nil {
		p.logger.Errorw("failed to publish domain event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
			"tenant_id", event.TenantID,
		)
		return err
	}

	p.logger.Debugw("published domain event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"tenant_id", event.TenantID,
	)

	return nil
}
