package aggregator

import (
	"log/slog"
	"math"
	"sort"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"
)

const defaultInboxSize = 64

// Options tune a spawned aggregator.
type Options struct {
	// SubscriberBuffer is the per-subscription queue depth before a slow
	// subscriber is cut off.
	SubscriberBuffer int
}

func (o Options) withDefaults() Options {
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 100
	}
	return o
}

// Aggregator merges the snapshot streams of several sources for one pair
// into a single broadcast of summaries.
//
// All merging happens in one goroutine: per-source pump goroutines funnel
// snapshots into the inbox, the run loop keeps the latest book per source,
// recomputes the merged summary on every update and publishes it to the hub.
// The first summary goes out as soon as any one source has produced a
// snapshot. A source closing its channel is non-fatal; once the last source
// is gone the hub closes and every subscriber observes end-of-stream.
type Aggregator struct {
	pair  domain.TradedPair
	hub   *Hub
	inbox chan sourceEvent
	done  chan struct{}
}

type sourceEvent struct {
	source string
	book   domain.ExchangeBook
	down   bool
}

// Spawn starts the merge loop over the given source streams and returns the
// handle used to obtain subscriptions. Sources are keyed by their exchange
// identifier; the caller must have at least one.
func Spawn(pair domain.TradedPair, sources map[string]<-chan domain.ExchangeBook, opts Options) *Aggregator {
	opts = opts.withDefaults()

	a := &Aggregator{
		pair:  pair,
		hub:   NewHub(opts.SubscriberBuffer),
		inbox: make(chan sourceEvent, defaultInboxSize),
		done:  make(chan struct{}),
	}

	for name, books := range sources {
		go a.pump(name, books)
	}
	go a.run(len(sources))

	slog.Info("Aggregator spawned",
		slog.String("pair", pair.String()),
		slog.Int("sources", len(sources)))
	return a
}

// Subscribe returns a fresh consumer endpoint on the broadcast hub.
// Subscribers joining later do not receive historical summaries.
func (a *Aggregator) Subscribe() *Subscription {
	return a.hub.Subscribe()
}

// Pair returns the pair this aggregator serves.
func (a *Aggregator) Pair() domain.TradedPair {
	return a.pair
}

// Done is closed when the merge loop has terminated.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Running reports whether the merge loop is still alive.
func (a *Aggregator) Running() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// pump forwards one source's snapshots into the inbox, preserving arrival
// order, and signals the run loop when the source terminates.
func (a *Aggregator) pump(source string, books <-chan domain.ExchangeBook) {
	infra.GlobalMetrics.IncrementSources()
	for book := range books {
		a.inbox <- sourceEvent{source: source, book: book}
	}
	infra.GlobalMetrics.DecrementSources()
	a.inbox <- sourceEvent{source: source, down: true}
}

// run is the single-threaded merge loop. It MUST be the only goroutine
// touching the books map.
func (a *Aggregator) run(liveSources int) {
	defer close(a.done)

	books := make(map[string]domain.ExchangeBook, liveSources)

	for liveSources > 0 {
		ev := <-a.inbox

		if ev.down {
			delete(books, ev.source)
			liveSources--
			slog.Info("Source terminated",
				slog.String("pair", a.pair.String()),
				slog.String("source", ev.source),
				slog.Int("remaining", liveSources))
			continue
		}

		books[ev.source] = ev.book
		infra.GlobalMetrics.RecordBook()

		a.hub.Publish(Merge(books, domain.DefaultDepth))
		infra.GlobalMetrics.RecordSummary()
	}

	slog.Info("All sources terminated, aggregator stopping",
		slog.String("pair", a.pair.String()))
	a.hub.Close()
}

// Merge builds a summary from the latest book of every source.
//
// All levels of every book are collected per side, sorted by price (bids
// descending, asks ascending) and truncated to depth. Ties never reorder:
// sources are walked in lexicographic order and the sort is stable, so equal
// prices keep source-id order first and original book position second,
// making the output deterministic for identical inputs. Spread is best ask
// minus best bid of the truncated sides, NaN when either side is empty.
func Merge(books map[string]domain.ExchangeBook, depth int) domain.Summary {
	sources := make([]string, 0, len(books))
	for src := range books {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var bids, asks []domain.ExchangeLevel
	for _, src := range sources {
		book := books[src]
		for _, lv := range book.Bids {
			bids = append(bids, domain.ExchangeLevel{Exchange: book.Exchange, Price: lv.Price, Amount: lv.Amount})
		}
		for _, lv := range book.Asks {
			asks = append(asks, domain.ExchangeLevel{Exchange: book.Exchange, Price: lv.Price, Amount: lv.Amount})
		}
	}

	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Price.GreaterThan(bids[j].Price)
	})
	sort.SliceStable(asks, func(i, j int) bool {
		return asks[i].Price.LessThan(asks[j].Price)
	})

	if len(bids) > depth {
		bids = bids[:depth]
	}
	if len(asks) > depth {
		asks = asks[:depth]
	}

	spread := math.NaN()
	if len(bids) > 0 && len(asks) > 0 {
		spread = asks[0].Price.Sub(bids[0].Price).InexactFloat64()
	}

	return domain.Summary{
		Spread: spread,
		Bids:   bids,
		Asks:   asks,
	}
}
