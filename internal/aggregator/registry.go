package aggregator

import (
	"context"
	"log/slog"
	"sync"

	"orderbook_go/internal/domain"
)

// Registry keeps at most one aggregator per pair alive and shares it among
// subscribers. The pair map is the only cross-task shared state in the
// process; a single mutex is its serialization point.
type Registry struct {
	mu    sync.Mutex
	aggs  map[domain.TradedPair]*Aggregator
	feeds []domain.Feed
	opts  Options

	// baseCtx bounds the feed connections to the process lifetime, not to
	// the subscriber request that happened to start the aggregator.
	baseCtx context.Context
}

// NewRegistry creates a registry over the configured feeds. baseCtx is the
// lifetime of every feed connection started through GetOrStart.
func NewRegistry(baseCtx context.Context, feeds []domain.Feed, opts Options) *Registry {
	return &Registry{
		aggs:    make(map[domain.TradedPair]*Aggregator),
		feeds:   feeds,
		opts:    opts,
		baseCtx: baseCtx,
	}
}

// GetOrStart returns the running aggregator for pair, starting one if this
// is the first request. The call is atomic with respect to concurrent calls
// for the same pair: under a stampede exactly one aggregator is spawned.
//
// Feeds that reject the pair synchronously are skipped; if every feed
// rejects it the call fails with ErrNoSourcesAvailable and nothing is
// cached, so a later request gets a fresh attempt.
func (r *Registry) GetOrStart(pair domain.TradedPair) (*Aggregator, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if agg, ok := r.aggs[pair]; ok {
		return agg, nil
	}

	sources := make(map[string]<-chan domain.ExchangeBook, len(r.feeds))
	for _, feed := range r.feeds {
		books, err := feed.Stream(r.baseCtx, pair)
		if err != nil {
			slog.Warn("Feed rejected pair",
				slog.String("feed", feed.Name()),
				slog.String("pair", pair.String()),
				slog.Any("error", err))
			continue
		}
		sources[feed.Name()] = books
	}

	if len(sources) == 0 {
		return nil, domain.ErrNoSourcesAvailable
	}

	agg := Spawn(pair, sources, r.opts)
	r.aggs[pair] = agg
	return agg, nil
}

// Len returns the number of cached aggregators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aggs)
}
