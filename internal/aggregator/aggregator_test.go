package aggregator

import (
	"math"
	"reflect"
	"testing"
	"time"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

func level(price, amount int64) domain.PriceLevel {
	return domain.PriceLevel{
		Price:  decimal.NewFromInt(price),
		Amount: decimal.NewFromInt(amount),
	}
}

func book(exchange string, bids, asks []domain.PriceLevel) domain.ExchangeBook {
	return domain.ExchangeBook{Exchange: exchange, Bids: bids, Asks: asks}
}

func recvSummary(t *testing.T, sub *Subscription) domain.Summary {
	t.Helper()
	select {
	case s, ok := <-sub.C():
		if !ok {
			t.Fatal("Subscription closed unexpectedly")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for summary")
	}
	return domain.Summary{}
}

func expectLevel(t *testing.T, got domain.ExchangeLevel, exchange string, price, amount int64) {
	t.Helper()
	if got.Exchange != exchange {
		t.Errorf("Expected exchange %s, got %s", exchange, got.Exchange)
	}
	if !got.Price.Equal(decimal.NewFromInt(price)) {
		t.Errorf("Expected price %d, got %s", price, got.Price)
	}
	if !got.Amount.Equal(decimal.NewFromInt(amount)) {
		t.Errorf("Expected amount %d, got %s", amount, got.Amount)
	}
}

func TestMerge(t *testing.T) {
	t.Run("Single Source Passthrough", func(t *testing.T) {
		books := map[string]domain.ExchangeBook{
			"Ex": book("Ex",
				[]domain.PriceLevel{level(100, 1), level(99, 2)},
				[]domain.PriceLevel{level(101, 3), level(102, 1)},
			),
		}

		s := Merge(books, domain.DefaultDepth)

		if len(s.Bids) != 2 || len(s.Asks) != 2 {
			t.Fatalf("Expected 2 bids and 2 asks, got %d/%d", len(s.Bids), len(s.Asks))
		}
		expectLevel(t, s.Bids[0], "Ex", 100, 1)
		expectLevel(t, s.Bids[1], "Ex", 99, 2)
		expectLevel(t, s.Asks[0], "Ex", 101, 3)
		expectLevel(t, s.Asks[1], "Ex", 102, 1)
		if s.Spread != 1.0 {
			t.Errorf("Expected spread 1.0, got %v", s.Spread)
		}
	})

	t.Run("Two Source Merge With Stable Ties", func(t *testing.T) {
		books := map[string]domain.ExchangeBook{
			"A": book("A",
				[]domain.PriceLevel{level(100, 1)},
				[]domain.PriceLevel{level(101, 1)},
			),
			"B": book("B",
				[]domain.PriceLevel{level(99, 5)},
				[]domain.PriceLevel{level(101, 2)},
			),
		}

		s := Merge(books, domain.DefaultDepth)

		expectLevel(t, s.Bids[0], "A", 100, 1)
		expectLevel(t, s.Bids[1], "B", 99, 5)
		// Equal ask prices keep source-id order, not amount order.
		expectLevel(t, s.Asks[0], "A", 101, 1)
		expectLevel(t, s.Asks[1], "B", 101, 2)
		if s.Spread != 1.0 {
			t.Errorf("Expected spread 1.0, got %v", s.Spread)
		}
	})

	t.Run("Identical Prices Stable By Source", func(t *testing.T) {
		same := []domain.PriceLevel{level(50, 1)}
		books := map[string]domain.ExchangeBook{
			"Bitstamp": book("Bitstamp", same, []domain.PriceLevel{level(51, 1)}),
			"Binance":  book("Binance", same, []domain.PriceLevel{level(51, 1)}),
		}

		s := Merge(books, domain.DefaultDepth)

		if s.Bids[0].Exchange != "Binance" || s.Bids[1].Exchange != "Bitstamp" {
			t.Errorf("Expected lexicographic source order on ties, got %s then %s",
				s.Bids[0].Exchange, s.Bids[1].Exchange)
		}
	})

	t.Run("Truncation To Depth", func(t *testing.T) {
		var bids, asks []domain.PriceLevel
		for i := int64(0); i < 12; i++ {
			bids = append(bids, level(100-i, 1))
			asks = append(asks, level(101+i, 1))
		}
		books := map[string]domain.ExchangeBook{"Ex": book("Ex", bids, asks)}

		s := Merge(books, domain.DefaultDepth)

		if len(s.Bids) != 10 || len(s.Asks) != 10 {
			t.Errorf("Expected both sides truncated to 10, got %d/%d", len(s.Bids), len(s.Asks))
		}
	})

	t.Run("Empty Side Yields NaN Spread", func(t *testing.T) {
		books := map[string]domain.ExchangeBook{
			"Ex": book("Ex", []domain.PriceLevel{level(100, 1)}, nil),
		}

		s := Merge(books, domain.DefaultDepth)

		if !math.IsNaN(s.Spread) {
			t.Errorf("Expected NaN spread, got %v", s.Spread)
		}
		if len(s.Bids) != 1 || len(s.Asks) != 0 {
			t.Errorf("Summary should still carry the non-empty side")
		}
	})

	t.Run("Sorted Sides", func(t *testing.T) {
		books := map[string]domain.ExchangeBook{
			"A": book("A",
				[]domain.PriceLevel{level(100, 1), level(98, 1)},
				[]domain.PriceLevel{level(101, 1), level(103, 1)},
			),
			"B": book("B",
				[]domain.PriceLevel{level(99, 1), level(97, 1)},
				[]domain.PriceLevel{level(102, 1), level(104, 1)},
			),
		}

		s := Merge(books, domain.DefaultDepth)

		for i := 1; i < len(s.Bids); i++ {
			if s.Bids[i].Price.GreaterThan(s.Bids[i-1].Price) {
				t.Errorf("Bids not sorted descending at %d", i)
			}
		}
		for i := 1; i < len(s.Asks); i++ {
			if s.Asks[i].Price.LessThan(s.Asks[i-1].Price) {
				t.Errorf("Asks not sorted ascending at %d", i)
			}
		}
	})
}

func TestAggregator_SingleSourcePassthrough(t *testing.T) {
	src := make(chan domain.ExchangeBook)
	agg := Spawn(domain.TradedPair{First: "ETH", Second: "BTC"},
		map[string]<-chan domain.ExchangeBook{"Ex": src}, Options{})
	sub := agg.Subscribe()
	defer sub.Close()

	src <- book("Ex",
		[]domain.PriceLevel{level(100, 1), level(99, 2)},
		[]domain.PriceLevel{level(101, 3), level(102, 1)},
	)

	s := recvSummary(t, sub)
	if s.Spread != 1.0 {
		t.Errorf("Expected spread 1.0, got %v", s.Spread)
	}
	expectLevel(t, s.Bids[0], "Ex", 100, 1)
	expectLevel(t, s.Asks[0], "Ex", 101, 3)

	close(src)
}

func TestAggregator_FirstSummaryNeedsOneSource(t *testing.T) {
	// Two sources configured, only one ever produces: the first summary
	// must not wait for the silent source.
	srcA := make(chan domain.ExchangeBook)
	srcB := make(chan domain.ExchangeBook)
	agg := Spawn(domain.TradedPair{First: "ETH", Second: "BTC"},
		map[string]<-chan domain.ExchangeBook{"A": srcA, "B": srcB}, Options{})
	sub := agg.Subscribe()
	defer sub.Close()

	srcA <- book("A", []domain.PriceLevel{level(100, 1)}, []domain.PriceLevel{level(101, 1)})

	s := recvSummary(t, sub)
	if len(s.Bids) != 1 || s.Bids[0].Exchange != "A" {
		t.Errorf("First summary should carry source A only, got %+v", s)
	}

	close(srcA)
	close(srcB)
}

func TestAggregator_SourceDrop(t *testing.T) {
	srcA := make(chan domain.ExchangeBook)
	srcB := make(chan domain.ExchangeBook)
	agg := Spawn(domain.TradedPair{First: "ETH", Second: "BTC"},
		map[string]<-chan domain.ExchangeBook{"A": srcA, "B": srcB}, Options{})
	sub := agg.Subscribe()
	defer sub.Close()

	srcA <- book("A", []domain.PriceLevel{level(100, 1)}, []domain.PriceLevel{level(101, 1)})
	recvSummary(t, sub)
	srcB <- book("B", []domain.PriceLevel{level(99, 5)}, []domain.PriceLevel{level(101, 2)})
	recvSummary(t, sub)

	// A terminates; give the merge loop a moment to process the removal.
	close(srcA)
	time.Sleep(100 * time.Millisecond)

	srcB <- book("B", []domain.PriceLevel{level(98, 5)}, []domain.PriceLevel{level(102, 2)})
	s := recvSummary(t, sub)

	for _, lv := range append(append([]domain.ExchangeLevel{}, s.Bids...), s.Asks...) {
		if lv.Exchange != "B" {
			t.Errorf("Summary after source drop should only contain B, found %s", lv.Exchange)
		}
	}
	if !agg.Running() {
		t.Error("Aggregator must survive a single source dropping")
	}

	close(srcB)
}

func TestAggregator_AllSourcesDown(t *testing.T) {
	src := make(chan domain.ExchangeBook)
	agg := Spawn(domain.TradedPair{First: "ETH", Second: "BTC"},
		map[string]<-chan domain.ExchangeBook{"Ex": src}, Options{})
	sub := agg.Subscribe()

	src <- book("Ex", []domain.PriceLevel{level(100, 1)}, []domain.PriceLevel{level(101, 1)})
	recvSummary(t, sub)

	close(src)

	select {
	case <-agg.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Aggregator should terminate once all sources are gone")
	}

	// Drain: the subscription must observe a clean end-of-stream.
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				if sub.Err() != nil {
					t.Errorf("Expected clean end-of-stream, got %v", sub.Err())
				}
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Subscription never closed")
		}
	}
}

func TestAggregator_Deterministic(t *testing.T) {
	run := func() []domain.Summary {
		src := make(chan domain.ExchangeBook)
		agg := Spawn(domain.TradedPair{First: "ETH", Second: "BTC"},
			map[string]<-chan domain.ExchangeBook{"Ex": src}, Options{})
		sub := agg.Subscribe()
		defer sub.Close()

		var out []domain.Summary
		for i := int64(0); i < 5; i++ {
			src <- book("Ex",
				[]domain.PriceLevel{level(100+i, 1)},
				[]domain.PriceLevel{level(110+i, 1)},
			)
			out = append(out, recvSummary(t, sub))
		}
		close(src)
		return out
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Error("Identical input sequences must produce identical summary sequences")
	}
}
