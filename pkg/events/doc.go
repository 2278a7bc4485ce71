/*
Package events provides an in-memory event broker for Hutch's pub/sub messaging.

The events package implements a lightweight event bus for broadcasting runtime
events to interested subscribers. It supports asynchronous event delivery with
per-subscriber buffering, enabling loose coupling between components for state
changes, notifications, and monitoring.

# Event Flow

	Publisher → event channel (buffer: 100)
	     ↓
	broadcast loop
	     ↓
	subscriber channels (buffer: 50 each)

Publish never blocks: the broadcast loop skips subscribers whose buffers
are full. Delivery is best effort; components must not rely on events
for correctness.

# Event Types Catalog

Image and layer events:
  - image.built, image.removed
  - layer.stored, layer.evicted

Instance events:
  - instance.created, instance.started, instance.stopped
  - instance.failed, instance.removed

Resource events:
  - network.created, network.removed
  - volume.created, volume.removed

Stack events:
  - stack.up, stack.down

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(events.New(events.EventImageBuilt,
		"image web:latest built",
		map[string]string{"image": "web:latest"}))

# Integration Points

The orchestrator publishes instance, stack, and eviction events; the
builder publishes image and layer events; the volume manager and
network registry publish resource events. The CLI subscribes to stream
progress during up and down.

# Limitations

In-memory only: no persistence, no replay, no delivery guarantees.
All events are broadcast to every subscriber; filter by Type at the
receiving side.
*/
package events
