// Package event provides a pub/sub event system for the gateway using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/telnet2/ragdocs-gateway/internal/logging"
)

// Topic is the watermill topic all lifecycle events are published on.
const Topic = "gateway.sessions"

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// Bus is the event bus. Events are JSON-encoded and routed through a
// watermill GoChannel; each subscription owns one watermill subscriber and
// one delivery goroutine. Delivery order across events is not guaranteed.
type Bus struct {
	mu sync.Mutex

	pubsub *gochannel.GoChannel

	subs   map[uint64]context.CancelFunc
	wg     sync.WaitGroup
	nextID uint64
	closed bool
}

// NewBus creates a new event bus with watermill infrastructure.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subs: make(map[uint64]context.CancelFunc),
	}
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	return b.subscribe(func(e Event) {
		if e.Type == eventType {
			fn(e)
		}
	})
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	return b.subscribe(fn)
}

func (b *Bus) subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		logging.Warn().Err(err).Msg("event subscribe failed")
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subs[id] = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("dropping malformed event")
				msg.Ack()
				continue
			}
			fn(e)
			msg.Ack()
		}
	}()

	return func() {
		b.mu.Lock()
		cancel, ok := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()
		if ok {
			cancel()
		}
	}
}

// Publish sends an event to all subscribers asynchronously.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(e.Type)).Msg("event encode failed")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logging.Debug().Err(err).Str("type", string(e.Type)).Msg("event publish failed")
	}
}

// Close unsubscribes everyone, waits for delivery goroutines to exit and
// closes the underlying pub/sub. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, cancel := range b.subs {
		cancel()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

// PubSub returns the underlying watermill GoChannel.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
