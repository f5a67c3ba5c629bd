package relay

import (
	"sync"
)

// Hub fans events out from the pipeline to any number of connected stream
// subscribers. Delivery is best-effort and at-most-once: there is no replay
// buffer, and a subscriber whose queue is full is treated as dead and
// removed rather than blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	buffer int
}

// Subscriber is one bounded queue registered with the hub. Events arrive in
// publish order; the channel is closed when the hub drops the subscriber.
type Subscriber struct {
	hub    *Hub
	ch     chan any
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new queue and returns it. The caller must Close the
// subscriber when the client disconnects.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{hub: h, ch: make(chan any, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish pushes the event onto every registered queue without blocking.
// It returns how many subscribers were notified and how many were dropped
// because their queue was full.
func (h *Hub) Publish(event any) (notified, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- event:
			notified++
		default:
			h.removeLocked(s)
			dropped++
		}
	}
	return notified, dropped
}

// SubscriberCount returns the number of currently registered queues.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) removeLocked(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan any {
	return s.ch
}

// Close deregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}
