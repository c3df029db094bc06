package mockserver

import (
	"encoding/json"
	"sync"

	"github.com/tide-dev/tide/internal/model"
)

// broker fans published events out to every connected /event stream.
type broker struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan []byte]struct{})}
}

func (b *broker) subscribe() chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *broker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// publish encodes ev once and queues it for every subscriber. Slow
// subscribers lose the event rather than stall the publisher.
func (b *broker) publish(ev model.Event) (delivered int, err error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- data:
			delivered++
		default:
		}
	}
	return delivered, nil
}
