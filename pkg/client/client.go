// Package client is the subscriber-side library for the order book summary
// service: it dials the server, opens the BookSummary stream and hands the
// caller a channel of summary-or-error items, retrying the initial
// connection within a bounded budget.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"orderbook_go/proto/orderbookpb"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const dialTimeout = 10 * time.Second

// SummaryResult is one item of the subscription stream: a summary or the
// error that ended the stream.
type SummaryResult struct {
	Summary *orderbookpb.Summary
	Err     error
}

// ConnectionSettings sets out how the client should connect to the service.
// MaxAttempts bounds how many times the initial connection is tried;
// DelayBetweenAttempts is the fixed wait between attempts. Once connected,
// transport errors end the stream and are not retried.
type ConnectionSettings struct {
	ServerAddress        string
	TradedPair           *orderbookpb.TradedPair
	MaxAttempts          int
	DelayBetweenAttempts time.Duration
}

// Validate rejects settings the connect loop cannot work with.
func (s ConnectionSettings) Validate() error {
	if s.ServerAddress == "" {
		return errors.New("server address is required")
	}
	if s.TradedPair.GetFirst() == "" || s.TradedPair.GetSecond() == "" {
		return errors.New("traded pair symbols are required")
	}
	if s.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if s.DelayBetweenAttempts < 0 {
		return errors.New("delay between attempts must be non-negative")
	}
	return nil
}

// ConnectToSummaryService connects to the service and returns a stream of
// summaries. The returned channel closes when the server completes the
// stream, after the first transport error (delivered as an error item), or
// when ctx is cancelled. If every connection attempt fails, the final item
// carries an Unavailable status.
func ConnectToSummaryService(ctx context.Context, settings ConnectionSettings) (<-chan SummaryResult, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	out := make(chan SummaryResult, 16)
	go run(ctx, settings, out)
	return out, nil
}

func run(ctx context.Context, settings ConnectionSettings, out chan<- SummaryResult) {
	defer close(out)

	for attempt := 1; attempt <= settings.MaxAttempts; attempt++ {
		slog.Info("Connecting to summary service",
			slog.Int("attempt", attempt), slog.Int("max_attempts", settings.MaxAttempts))

		conn, stream, err := connectForPair(ctx, settings)
		if err != nil {
			slog.Warn("Connection attempt failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(settings.DelayBetweenAttempts):
				continue
			}
		}

		forward(ctx, conn, stream, out)
		return
	}

	deliver(ctx, out, SummaryResult{Err: status.Error(codes.Unavailable, "the service is unavailable")})
}

// forward pumps the open stream into out until it ends. Transport errors
// after a successful connection are surfaced as a stream item, not retried.
func forward(ctx context.Context, conn *grpc.ClientConn, stream orderbookpb.OrderbookAggregator_BookSummaryClient, out chan<- SummaryResult) {
	defer conn.Close()

	for {
		summary, err := stream.Recv()
		if err == io.EOF {
			// Server completed the stream.
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			deliver(ctx, out, SummaryResult{Err: err})
			return
		}
		if !deliver(ctx, out, SummaryResult{Summary: summary}) {
			return
		}
	}
}

func deliver(ctx context.Context, out chan<- SummaryResult, res SummaryResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

func connectForPair(ctx context.Context, settings ConnectionSettings) (*grpc.ClientConn, orderbookpb.OrderbookAggregator_BookSummaryClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, hostPort(settings.ServerAddress),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock())
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", settings.ServerAddress, err)
	}

	stream, err := orderbookpb.NewOrderbookAggregatorClient(conn).BookSummary(ctx,
		&orderbookpb.Request{TradedPair: settings.TradedPair})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("calling BookSummary: %w", err)
	}

	return conn, stream, nil
}

// hostPort strips a URL scheme so both "http://host:port" and bare
// "host:port" addresses work.
func hostPort(addr string) string {
	for _, scheme := range []string{"http://", "https://", "grpc://"} {
		if strings.HasPrefix(addr, scheme) {
			return strings.TrimPrefix(addr, scheme)
		}
	}
	return addr
}
