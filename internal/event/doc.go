// Package event carries session lifecycle events from the registry to
// observers such as the metrics collector.
//
// Events are JSON-encoded and published on a single watermill GoChannel
// topic (Topic). Every Subscribe or SubscribeAll call creates its own
// watermill subscription and delivery goroutine; Subscribe filters by
// EventType. Publishing never blocks on slow subscribers.
//
// The registry publishes:
//
//   - SessionCreated after a transport is attached and registered
//   - SessionRejected when the engine refuses a transport
//   - SessionClosed when a client disconnect removes a session
//   - SessionEvicted for each session removed by the idle sweep
//   - SessionsDrained once on shutdown
//
// The gateway publishes MessageForwarded after each routed message.
//
// Usage:
//
//	bus := event.NewBus()
//	defer bus.Close()
//
//	unsub := bus.Subscribe(event.SessionEvicted, func(e event.Event) {
//	    log.Printf("evicted %s after %s idle", e.SessionID, e.Idle)
//	})
//	defer unsub()
package event
