package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbook_go/internal/infra"
	"orderbook_go/pkg/client"
	"orderbook_go/proto/orderbookpb"

	"github.com/joho/godotenv"
)

const (
	maxAttempts          = 10
	delayBetweenAttempts = 500 * time.Millisecond
)

func main() {
	_ = godotenv.Load()

	// Summaries go to stdout; logs stay on stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: infra.ParseLevel(os.Getenv("ORDERBOOK_LOG_LEVEL")),
	})))

	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <server_url> <first_symbol> <second_symbol>\n", os.Args[0])
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := client.ConnectToSummaryService(ctx, client.ConnectionSettings{
		ServerAddress:        os.Args[1],
		TradedPair:           &orderbookpb.TradedPair{First: os.Args[2], Second: os.Args[3]},
		MaxAttempts:          maxAttempts,
		DelayBetweenAttempts: delayBetweenAttempts,
	})
	if err != nil {
		slog.Error("Invalid connection settings", slog.Any("error", err))
		os.Exit(1)
	}

	for res := range results {
		if res.Err != nil {
			slog.Error("Stream ended with error", slog.Any("error", res.Err))
			os.Exit(1)
		}
		printSummary(res.Summary)
	}
}

func printSummary(s *orderbookpb.Summary) {
	fmt.Printf("spread: %v\n", s.GetSpread())
	fmt.Println("bids:")
	for _, lv := range s.GetBids() {
		printLevel(lv)
	}
	fmt.Println("asks:")
	for _, lv := range s.GetAsks() {
		printLevel(lv)
	}
	fmt.Println()
}

func printLevel(lv *orderbookpb.Level) {
	fmt.Printf("  %-10s price=%v amount=%v\n", lv.GetExchange(), lv.GetPrice(), lv.GetAmount())
}
