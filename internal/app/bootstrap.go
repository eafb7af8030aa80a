package app

import (
	"log/slog"
	"os"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/feed/binance"
	"orderbook_go/internal/feed/bitstamp"
	"orderbook_go/internal/infra"
)

const defaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the service startup sequence
type Bootstrap struct {
	Config *infra.Config
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and installs the default logger.
func (b *Bootstrap) Initialize() error {
	path := os.Getenv("ORDERBOOK_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	return nil
}

// Feeds builds the configured exchange feeds. Every feed registered here
// is attached to each aggregator the registry starts.
func (b *Bootstrap) Feeds() []domain.Feed {
	cfg := b.Config
	return []domain.Feed{
		binance.New(binance.Config{
			WSURL:         cfg.Exchanges.Binance.WSURL,
			Depth:         cfg.Exchanges.Binance.Depth,
			UpdateSpeedMS: cfg.Exchanges.Binance.UpdateSpeedMS,
			Reconnect:     cfg.Exchanges.Reconnect,
			MaxRetries:    cfg.Exchanges.MaxRetries,
		}),
		bitstamp.New(bitstamp.Config{
			WSURL:      cfg.Exchanges.Bitstamp.WSURL,
			Reconnect:  cfg.Exchanges.Reconnect,
			MaxRetries: cfg.Exchanges.MaxRetries,
		}),
	}
}
