// Package events fans server events out to subscribers by topic.
package events

import (
	"context"
	"sync"

	"github.com/tide-dev/tide/internal/model"
)

// TopicAll subscribes to every event regardless of type.
const TopicAll = "*"

// Handler receives one event. Handlers run synchronously on the publishing
// goroutine, one event at a time, in publish order.
type Handler func(ev model.Event)

type subscription struct {
	id      uint64
	topic   string
	handler Handler
}

// Hub dispatches events to handlers subscribed to the event type or to
// TopicAll.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription

	// deliver serializes Publish calls so handlers observe a single order.
	deliver sync.Mutex
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers handler for topic, an event type or TopicAll, and
// returns a function that removes the subscription. The returned function
// is idempotent.
func (h *Hub) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, topic: topic, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to every matching handler in subscription order.
// A handler may unsubscribe itself or others while being called.
func (h *Hub) Publish(ev model.Event) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.RLock()
	matched := make([]Handler, 0, len(h.subs))
	for _, s := range h.subs {
		if s.topic == TopicAll || s.topic == string(ev.Type) {
			matched = append(matched, s.handler)
		}
	}
	h.mu.RUnlock()

	for _, fn := range matched {
		fn(ev)
	}
}

// Pump publishes every event received from in until in is closed or ctx
// is done.
func (h *Hub) Pump(ctx context.Context, in <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			h.Publish(ev)
		}
	}
}
