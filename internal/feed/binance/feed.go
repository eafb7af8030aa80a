package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/feed"
	"orderbook_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	exchangeName     = "Binance"
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// Config carries the Binance-specific connection settings.
type Config struct {
	WSURL         string
	Depth         int
	UpdateSpeedMS int
	Reconnect     bool
	MaxRetries    int
}

// Feed streams Binance partial book depth snapshots. The subscription is
// encoded in the connection URL (<symbol>@depth<N>@<speed>ms), so there is
// no subscribe frame to send.
type Feed struct {
	cfg Config
}

// New creates a Binance feed from config, filling unset values.
func New(cfg Config) *Feed {
	if cfg.WSURL == "" {
		cfg.WSURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.Depth == 0 {
		cfg.Depth = domain.DefaultDepth
	}
	if cfg.UpdateSpeedMS == 0 {
		cfg.UpdateSpeedMS = 100
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	return &Feed{cfg: cfg}
}

func (f *Feed) Name() string { return exchangeName }

// Stream opens the depth stream for pair. The returned channel carries
// normalized snapshots until the source terminates, then closes.
func (f *Feed) Stream(ctx context.Context, pair domain.TradedPair) (<-chan domain.ExchangeBook, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s@depth%d@%dms",
		strings.TrimSuffix(f.cfg.WSURL, "/"), pair.SymbolLower(), f.cfg.Depth, f.cfg.UpdateSpeedMS)

	w := &worker{
		url: url,
		cfg: f.cfg,
		out: make(chan domain.ExchangeBook, 16),
	}
	go w.connectionLoop(ctx)
	return w.out, nil
}

// depthFrame is the Binance partial book depth payload.
type depthFrame struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// worker owns one websocket connection and the outbound snapshot channel.
type worker struct {
	url  string
	cfg  Config
	out  chan domain.ExchangeBook
	conn *websocket.Conn
	mu   sync.RWMutex
}

func (w *worker) connectionLoop(ctx context.Context) {
	defer close(w.out)
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Binance connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			if !w.cfg.Reconnect || !domain.IsRetriable(err) {
				return
			}
			retryCount++
			if retryCount > w.cfg.MaxRetries {
				slog.Error("Binance retry budget exhausted, source terminating", slog.String("url", w.url))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(infra.CalculateBackoff(retryCount)):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
		if !w.cfg.Reconnect {
			return
		}
	}
}

func (w *worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return domain.NewNetworkError("connect", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err))
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	slog.Info("Binance connected", slog.String("url", w.url))
	return nil
}

func (w *worker) readLoop(ctx context.Context) {
	defer w.closeConnection()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("Binance read failed", slog.Any("error", err))
			return
		}

		book, ok := w.parseFrame(msg)
		if !ok {
			continue
		}

		select {
		case w.out <- book:
		case <-ctx.Done():
			return
		}
	}
}

// parseFrame normalizes one depth frame. Undecodable frames are counted,
// logged and skipped; they never terminate the stream.
func (w *worker) parseFrame(msg []byte) (domain.ExchangeBook, bool) {
	var frame depthFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Binance undecodable frame", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}
	if frame.Bids == nil && frame.Asks == nil {
		// Not a depth payload (e.g. a subscription ack), ignore.
		return domain.ExchangeBook{}, false
	}

	bids, err := feed.ParseLevels(frame.Bids, domain.DefaultDepth)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Binance bad bid level", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}
	asks, err := feed.ParseLevels(frame.Asks, domain.DefaultDepth)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Binance bad ask level", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}

	return domain.ExchangeBook{
		Exchange:   exchangeName,
		Bids:       bids,
		Asks:       asks,
		ReceivedAt: time.Now(),
	}, true
}

func (w *worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
