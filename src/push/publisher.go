package push

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"leadgrid/src/infrastructure/log"
)

// EventsTopic is the queue topic carrying push events from producers (worker,
// API handlers) to the serving process that owns the hub.
const EventsTopic = "events"

// Publisher emits push events toward connected dashboard clients. The zero
// dependency for tests is a fake; production uses the watermill-backed one.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, payload any) error
}

// QueuePublisher publishes push events onto the message queue.
type QueuePublisher struct {
	publisher message.Publisher
}

func NewQueuePublisher(publisher message.Publisher) *QueuePublisher {
	return &QueuePublisher{publisher: publisher}
}

func (p *QueuePublisher) Publish(ctx context.Context, kind Kind, payload any) error {
	ev, err := NewEvent(kind, payload)
	if err != nil {
		return err
	}

	encoded, err := ev.Encode()
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), encoded)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(EventsTopic, msg); err != nil {
		return fmt.Errorf("failed to publish push event: %w", err)
	}

	return nil
}

// Relay consumes push events from the queue and broadcasts them through the
// hub. Hooks run before the broadcast, letting the server react to events
// (cache invalidation) ahead of any client refetch. Relay returns when the
// subscription channel closes or ctx is done.
func Relay(ctx context.Context, messages <-chan *message.Message, hub *Hub, hooks ...func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			ev, err := DecodeEvent(msg.Payload)
			if err != nil {
				log.Error(err, "dropping undecodable push event", "message_id", msg.UUID)
				msg.Ack()
				continue
			}

			for _, hook := range hooks {
				hook(ev)
			}
			hub.Broadcast(ev)
			msg.Ack()
		}
	}
}
