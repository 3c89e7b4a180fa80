package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const defaultBuffer = 16

// Event is one server-sent event addressed to a single recipient
type Event struct {
	Recipient string
	Name      string
	Data      interface{}
}

// WriteTo writes the event in text/event-stream framing.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return 0, fmt.Errorf("encode sse event %s: %w", e.Name, err)
	}
	n, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, data)
	return int64(n), err
}

// Hub fans events out to the open streams of each recipient. Slow
// subscribers lose events rather than block publishers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	buffer      int
	closed      bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		buffer:      defaultBuffer,
	}
}

// Subscribe opens a stream for recipient. The returned cancel func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe(recipient string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	if h.subscribers[recipient] == nil {
		h.subscribers[recipient] = make(map[chan Event]struct{})
	}
	h.subscribers[recipient][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[recipient][ch]; !ok {
				return // already closed by Close
			}
			delete(h.subscribers[recipient], ch)
			close(ch)
			if len(h.subscribers[recipient]) == 0 {
				delete(h.subscribers, recipient)
			}
		})
	}
	return ch, cancel
}

// Publish delivers event to every stream of event.Recipient and reports how
// many received it.
func (h *Hub) Publish(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subscribers[event.Recipient] {
		select {
		case ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// PublishToMany sends a copy of event to each recipient
func (h *Hub) PublishToMany(recipients []string, event Event) int {
	delivered := 0
	for _, r := range recipients {
		e := event
		e.Recipient = r
		delivered += h.Publish(e)
	}
	return delivered
}

func (h *Hub) SubscriberCount(recipient string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[recipient])
}

// Close ends every open stream. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for recipient, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, recipient)
	}
}
