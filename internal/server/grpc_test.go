package server

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"orderbook_go/internal/aggregator"
	"orderbook_go/internal/domain"
	"orderbook_go/proto/orderbookpb"

	"github.com/golang/protobuf/proto"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stubFeed hands the test full control over one source stream.
type stubFeed struct {
	name string
	err  error
	ch   chan domain.ExchangeBook
}

func (f *stubFeed) Name() string { return f.name }

func (f *stubFeed) Stream(_ context.Context, _ domain.TradedPair) (<-chan domain.ExchangeBook, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

// fakeStream records sends; only Send and Context are ever called.
type fakeStream struct {
	grpc.ServerStream
	ctx  context.Context
	mu   sync.Mutex
	sent []*orderbookpb.Summary

	// When non-nil, Send signals entered and waits for release first.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func (f *fakeStream) Send(m *orderbookpb.Summary) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeStream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeStream) first() *orderbookpb.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[0]
}

func testBook() domain.ExchangeBook {
	return domain.ExchangeBook{
		Exchange: "Ex",
		Bids:     []domain.PriceLevel{{Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1)}},
		Asks:     []domain.PriceLevel{{Price: decimal.NewFromInt(101), Amount: decimal.NewFromInt(2)}},
	}
}

func ethBtcRequest() *orderbookpb.Request {
	return &orderbookpb.Request{TradedPair: &orderbookpb.TradedPair{First: "ETH", Second: "BTC"}}
}

func TestBookSummary_InvalidRequests(t *testing.T) {
	reg := aggregator.NewRegistry(context.Background(), []domain.Feed{&stubFeed{name: "Ex"}}, aggregator.Options{})
	svc := NewSummaryService(reg)

	cases := map[string]*orderbookpb.Request{
		"Missing Pair":  {},
		"Empty First":   {TradedPair: &orderbookpb.TradedPair{Second: "BTC"}},
		"Empty Second":  {TradedPair: &orderbookpb.TradedPair{First: "ETH"}},
		"Empty Symbols": {TradedPair: &orderbookpb.TradedPair{}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			err := svc.BookSummary(req, &fakeStream{ctx: context.Background()})
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("Expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestBookSummary_NoSourcesUnavailable(t *testing.T) {
	feed := &stubFeed{name: "Ex", err: domain.ErrInvalidPair}
	reg := aggregator.NewRegistry(context.Background(), []domain.Feed{feed}, aggregator.Options{})
	svc := NewSummaryService(reg)

	err := svc.BookSummary(ethBtcRequest(), &fakeStream{ctx: context.Background()})
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Expected Unavailable, got %v", err)
	}
}

func TestBookSummary_ForwardsSummaries(t *testing.T) {
	feed := &stubFeed{name: "Ex", ch: make(chan domain.ExchangeBook, 1)}
	reg := aggregator.NewRegistry(context.Background(), []domain.Feed{feed}, aggregator.Options{})
	svc := NewSummaryService(reg)

	ctx, cancel := context.WithCancel(context.Background())
	stream := &fakeStream{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- svc.BookSummary(ethBtcRequest(), stream) }()

	// Give the handler a moment to subscribe before the first publish.
	time.Sleep(100 * time.Millisecond)
	feed.ch <- testBook()

	deadline := time.Now().Add(2 * time.Second)
	for stream.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for a forwarded summary")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := stream.first()
	if got.GetSpread() != 1.0 {
		t.Errorf("Expected spread 1.0, got %v", got.GetSpread())
	}
	if len(got.GetBids()) != 1 || got.GetBids()[0].GetExchange() != "Ex" {
		t.Errorf("Expected one bid tagged Ex, got %v", got.GetBids())
	}

	// Subscriber disconnect ends the handler without error.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on subscriber disconnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler did not return after disconnect")
	}
}

func TestBookSummary_EndOfStreamOnAggregatorTermination(t *testing.T) {
	feed := &stubFeed{name: "Ex", ch: make(chan domain.ExchangeBook, 1)}
	reg := aggregator.NewRegistry(context.Background(), []domain.Feed{feed}, aggregator.Options{})
	svc := NewSummaryService(reg)

	stream := &fakeStream{ctx: context.Background()}
	done := make(chan error, 1)
	go func() { done <- svc.BookSummary(ethBtcRequest(), stream) }()

	time.Sleep(100 * time.Millisecond)
	close(feed.ch) // last source terminates

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Aggregator termination is a clean end-of-stream, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler did not observe end-of-stream")
	}
}

func TestBookSummary_LaggingSubscriber(t *testing.T) {
	feed := &stubFeed{name: "Ex", ch: make(chan domain.ExchangeBook, 4)}
	reg := aggregator.NewRegistry(context.Background(), []domain.Feed{feed},
		aggregator.Options{SubscriberBuffer: 1})
	svc := NewSummaryService(reg)

	stream := &fakeStream{
		ctx:     context.Background(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() { done <- svc.BookSummary(ethBtcRequest(), stream) }()

	time.Sleep(100 * time.Millisecond)

	// First summary: the fan-out picks it up and parks inside Send.
	feed.ch <- testBook()
	<-stream.entered

	// Two more summaries against a buffer of one: overflow cuts the
	// subscription while the transport is stuck.
	feed.ch <- testBook()
	feed.ch <- testBook()
	time.Sleep(200 * time.Millisecond)

	close(stream.release)
	// Let the remaining buffered sends drain. Release is closed, so Send no
	// longer parks on it, but every Send still signals on the unbuffered
	// entered channel: drain those signals too.
	go func() {
		for range stream.entered {
		}
	}()

	select {
	case err := <-done:
		if status.Code(err) != codes.ResourceExhausted {
			t.Errorf("Expected ResourceExhausted for lagging subscriber, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler did not terminate the lagging subscriber")
	}
}

func TestSummaryToProto(t *testing.T) {
	s := domain.Summary{
		Spread: 1.0,
		Bids: []domain.ExchangeLevel{
			{Exchange: "A", Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1)},
		},
		Asks: []domain.ExchangeLevel{
			{Exchange: "B", Price: decimal.NewFromInt(101), Amount: decimal.NewFromInt(2)},
		},
	}

	pb := SummaryToProto(s)
	if pb.GetSpread() != 1.0 {
		t.Errorf("Expected spread 1.0, got %v", pb.GetSpread())
	}
	if pb.GetBids()[0].GetExchange() != "A" || pb.GetBids()[0].GetPrice() != 100 {
		t.Errorf("Bid conversion wrong: %v", pb.GetBids()[0])
	}
	if pb.GetAsks()[0].GetExchange() != "B" || pb.GetAsks()[0].GetAmount() != 2 {
		t.Errorf("Ask conversion wrong: %v", pb.GetAsks()[0])
	}
}

func TestSummaryWireRoundTrip(t *testing.T) {
	t.Run("Integer Values Bit Exact", func(t *testing.T) {
		original := &orderbookpb.Summary{
			Spread: 2,
			Bids: []*orderbookpb.Level{
				{Exchange: "Binance", Price: 100, Amount: 3},
				{Exchange: "Bitstamp", Price: 99, Amount: 7},
			},
			Asks: []*orderbookpb.Level{
				{Exchange: "Binance", Price: 102, Amount: 1},
			},
		}

		raw, err := proto.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		decoded := &orderbookpb.Summary{}
		if err := proto.Unmarshal(raw, decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if !proto.Equal(original, decoded) {
			t.Errorf("Round trip mismatch:\noriginal: %v\ndecoded:  %v", original, decoded)
		}
	})

	t.Run("NaN Spread Survives", func(t *testing.T) {
		original := &orderbookpb.Summary{Spread: math.NaN()}
		raw, err := proto.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		decoded := &orderbookpb.Summary{}
		if err := proto.Unmarshal(raw, decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if !math.IsNaN(decoded.GetSpread()) {
			t.Errorf("Expected NaN spread after round trip, got %v", decoded.GetSpread())
		}
	})
}
