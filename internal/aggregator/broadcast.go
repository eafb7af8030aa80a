package aggregator

import (
	"log/slog"
	"sync"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"

	"github.com/google/uuid"
)

// Hub is the many-reader broadcast channel between one aggregator and its
// subscribers. The aggregator is the sole writer. Each subscription gets its
// own buffered queue; a subscriber that lets its queue fill up is cut off
// with ErrSubscriberLagging so a slow consumer can never slow the producer.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	closed bool
}

// NewHub creates a hub whose subscriptions buffer up to buffer summaries.
func NewHub(buffer int) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscription is one consumer endpoint of a Hub. Values arrive on C in
// publication order; the channel closes on aggregator termination, lag
// cut-off, or Close. After C is closed, Err reports why: nil for a clean
// end-of-stream, ErrSubscriberLagging if the subscriber fell behind.
type Subscription struct {
	id  string
	ch  chan domain.Summary
	hub *Hub
	err error
}

// C returns the summary channel.
func (s *Subscription) C() <-chan domain.Summary {
	return s.ch
}

// Err reports why the subscription ended. Only valid after C is closed.
func (s *Subscription) Err() error {
	return s.err
}

// Close detaches the subscription from its hub. Safe to call more than once
// and after the hub itself has closed.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

// Subscribe attaches a new subscriber. Joining late means missing earlier
// summaries: delivery starts with the next published value, no replay.
// Subscribing to a closed hub yields an immediately closed subscription.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan domain.Summary, h.buffer),
		hub: h,
	}

	if h.closed {
		close(sub.ch)
		return sub
	}

	h.subs[sub.id] = sub
	infra.GlobalMetrics.IncrementSubscribers()
	return sub
}

// Publish delivers a summary to every live subscription without blocking.
// A subscription whose buffer is full is terminated with
// ErrSubscriberLagging; the others are unaffected.
func (h *Hub) Publish(summary domain.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for id, sub := range h.subs {
		select {
		case sub.ch <- summary:
		default:
			sub.err = domain.ErrSubscriberLagging
			close(sub.ch)
			delete(h.subs, id)
			infra.GlobalMetrics.DecrementSubscribers()
			infra.GlobalMetrics.RecordDroppedSubscriber()
			slog.Warn("Subscriber lagging, dropped", slog.String("subscription", id))
		}
	}
}

// Close ends every subscription with a clean end-of-stream and rejects
// future publishes. Idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
		infra.GlobalMetrics.DecrementSubscribers()
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	infra.GlobalMetrics.DecrementSubscribers()
}
