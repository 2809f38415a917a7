// Package eventbus is a small topic based publish/subscribe hub.
package eventbus

import (
	"sync"
	"sync/atomic"
)

type Event struct {
	Payload interface{}
}

type EventChan chan Event

// EventBus fans events out to buffered subscriber channels. Publish never
// blocks, an event for a full channel is dropped for that subscriber.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventChan
	bufferSize  int
	dropped     atomic.Uint64
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventBus{
		subscribers: make(map[string][]EventChan),
		bufferSize:  bufferSize,
	}
}

// Publish delivers event to every current subscriber of topic and returns
// how many received it.
func (eb *EventBus) Publish(topic string, event Event) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	delivered := 0
	for _, ch := range eb.subscribers[topic] {
		select {
		case ch <- event:
			delivered++
		default:
			eb.dropped.Add(1)
		}
	}
	return delivered
}

func (eb *EventBus) Subscribe(topic string) EventChan {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(EventChan, eb.bufferSize)
	eb.subscribers[topic] = append(eb.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes ch from topic and closes it.
func (eb *EventBus) Unsubscribe(topic string, ch EventChan) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subscribers := eb.subscribers[topic]
	for i, subscriber := range subscribers {
		if ch == subscriber {
			eb.subscribers[topic] = append(subscribers[:i:i], subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Dropped returns the number of events discarded because a subscriber was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}
