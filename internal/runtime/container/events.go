package container

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/kerneltest/internal/runtime/ids"
	"github.com/drblury/kerneltest/internal/runtime/jsoncodec"
	"github.com/drblury/kerneltest/internal/runtime/logging"
)

// EventsTopic is the topic service state changes are published on.
const EventsTopic = "kernel.services"

const containerMetadataKey = "container"

// Event is one service state change.
type Event struct {
	Container string    `json:"container"`
	Service   string    `json:"service"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
}

func (c *Container) publish(service string, state State, err error) {
	ev := Event{
		Container: c.name,
		Service:   service,
		State:     state,
		Seq:       c.seq.Next(),
		Time:      time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	payload, marshalErr := jsoncodec.Marshal(ev)
	if marshalErr != nil {
		c.log.Error("Failed to encode service event", marshalErr, logging.LogFields{"service": service})
		return
	}
	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata.Set(containerMetadataKey, c.name)
	if pubErr := c.events.Publisher.Publish(EventsTopic, msg); pubErr != nil {
		c.log.Debug("Service event not published", logging.LogFields{"service": service, "error": pubErr.Error()})
	}
}

// Subscribe streams this container's service events. The channel closes
// when ctx ends or the container shuts down.
func (c *Container) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := c.events.Subscriber.Subscribe(ctx, EventsTopic)
	if err != nil {
		return nil, err
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev Event
			decodeErr := jsoncodec.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if decodeErr != nil {
				c.log.Error("Failed to decode service event", decodeErr, nil)
				continue
			}
			if msg.Metadata.Get(containerMetadataKey) != c.name {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
