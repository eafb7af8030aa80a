package domain

import "context"

// Feed turns one exchange's depth channel into a stream of normalized
// ExchangeBook snapshots for a single pair.
//
// Stream validates the pair and builds the connection URL synchronously;
// unsupported pairs fail immediately with ErrInvalidPair. The network side
// runs in a background goroutine owned by the feed: the returned channel
// carries snapshots until the source terminates (connect failure after the
// retry budget, reconnection disabled, or ctx cancelled) and is then closed.
// A closed channel is final; callers wanting a fresh stream call Stream again.
type Feed interface {
	Name() string
	Stream(ctx context.Context, pair TradedPair) (<-chan ExchangeBook, error)
}
