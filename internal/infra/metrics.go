package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	booksReceived      atomic.Uint64
	summariesPublished atomic.Uint64
	decodeErrors       atomic.Uint64
	droppedSubscribers atomic.Uint64

	// Gauges
	activeSources     atomic.Int32
	activeSubscribers atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordBook records one snapshot received from a source feed.
func (m *Metrics) RecordBook() {
	m.booksReceived.Add(1)
}

// RecordSummary records one summary published to the broadcast hub.
func (m *Metrics) RecordSummary() {
	m.summariesPublished.Add(1)
}

// RecordDecodeError records a frame that could not be parsed.
func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Add(1)
}

// RecordDroppedSubscriber records a subscription cut off for lagging.
func (m *Metrics) RecordDroppedSubscriber() {
	m.droppedSubscribers.Add(1)
}

// IncrementSources increments active source connections by 1.
func (m *Metrics) IncrementSources() {
	m.activeSources.Add(1)
}

// DecrementSources decrements active source connections by 1.
func (m *Metrics) DecrementSources() {
	m.activeSources.Add(-1)
}

// IncrementSubscribers increments active subscriptions by 1.
func (m *Metrics) IncrementSubscribers() {
	m.activeSubscribers.Add(1)
}

// DecrementSubscribers decrements active subscriptions by 1.
func (m *Metrics) DecrementSubscribers() {
	m.activeSubscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	BooksReceived      uint64
	SummariesPublished uint64
	DecodeErrors       uint64
	DroppedSubscribers uint64
	ActiveSources      int32
	ActiveSubscribers  int32
	Timestamp          time.Time
}

// Snapshot returns the current values of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BooksReceived:      m.booksReceived.Load(),
		SummariesPublished: m.summariesPublished.Load(),
		DecodeErrors:       m.decodeErrors.Load(),
		DroppedSubscribers: m.droppedSubscribers.Load(),
		ActiveSources:      m.activeSources.Load(),
		ActiveSubscribers:  m.activeSubscribers.Load(),
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics. Intended for tests.
func (m *Metrics) Reset() {
	m.booksReceived.Store(0)
	m.summariesPublished.Store(0)
	m.decodeErrors.Store(0)
	m.droppedSubscribers.Store(0)
	m.activeSources.Store(0)
	m.activeSubscribers.Store(0)
}
