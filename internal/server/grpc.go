package server

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"orderbook_go/internal/aggregator"
	"orderbook_go/internal/domain"
	"orderbook_go/proto/orderbookpb"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SummaryService implements the OrderbookAggregator gRPC service: it turns
// a BookSummary request into a subscription on the pair's aggregator and
// forwards every broadcast summary to the RPC stream. Each open stream is
// one fan-out task, bound to the subscriber's lifetime.
type SummaryService struct {
	registry *aggregator.Registry
}

// NewSummaryService wires the service to a registry.
func NewSummaryService(registry *aggregator.Registry) *SummaryService {
	return &SummaryService{registry: registry}
}

// BookSummary handles one subscriber for the whole life of its stream.
func (s *SummaryService) BookSummary(req *orderbookpb.Request, stream orderbookpb.OrderbookAggregator_BookSummaryServer) error {
	pair, err := pairFromRequest(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	agg, err := s.registry.GetOrStart(pair)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoSourcesAvailable):
			return status.Error(codes.Unavailable, err.Error())
		case errors.Is(err, domain.ErrInvalidPair):
			return status.Error(codes.InvalidArgument, err.Error())
		default:
			return status.Error(codes.Internal, err.Error())
		}
	}

	sub := agg.Subscribe()
	defer sub.Close()

	slog.Info("Subscriber attached", slog.String("pair", pair.String()))
	defer slog.Info("Subscriber detached", slog.String("pair", pair.String()))

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case summary, ok := <-sub.C():
			if !ok {
				if errors.Is(sub.Err(), domain.ErrSubscriberLagging) {
					return status.Error(codes.ResourceExhausted,
						"subscriber lagging behind broadcast, resubscribe to resync")
				}
				// Aggregator terminated: clean end-of-stream.
				return nil
			}
			if err := stream.Send(SummaryToProto(summary)); err != nil {
				slog.Warn("Transport send failed", slog.String("pair", pair.String()), slog.Any("error", err))
				return err
			}
		}
	}
}

// pairFromRequest validates the request's traded pair.
func pairFromRequest(req *orderbookpb.Request) (domain.TradedPair, error) {
	tp := req.GetTradedPair()
	if tp == nil {
		return domain.TradedPair{}, errors.New("this RPC requires traded_pair to be provided")
	}
	pair := domain.TradedPair{First: tp.GetFirst(), Second: tp.GetSecond()}
	if err := pair.Validate(); err != nil {
		return domain.TradedPair{}, err
	}
	return pair, nil
}

// SummaryToProto converts a domain summary to its wire form. Decimal prices
// and amounts become float64 here; the spread is already a float64, computed
// from the decimal prices in aggregator.Merge.
func SummaryToProto(s domain.Summary) *orderbookpb.Summary {
	return &orderbookpb.Summary{
		Spread: s.Spread,
		Bids:   levelsToProto(s.Bids),
		Asks:   levelsToProto(s.Asks),
	}
}

func levelsToProto(levels []domain.ExchangeLevel) []*orderbookpb.Level {
	out := make([]*orderbookpb.Level, 0, len(levels))
	for _, lv := range levels {
		out = append(out, &orderbookpb.Level{
			Exchange: lv.Exchange,
			Price:    lv.Price.InexactFloat64(),
			Amount:   lv.Amount.InexactFloat64(),
		})
	}
	return out
}

// Serve binds addr and serves the gRPC service until ctx is cancelled.
func Serve(ctx context.Context, addr string, svc *SummaryService) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer()
	orderbookpb.RegisterOrderbookAggregatorServer(grpcServer, svc)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	slog.Info("gRPC server listening", slog.String("addr", addr))
	return grpcServer.Serve(lis)
}
