package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/feed"
	"orderbook_go/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	exchangeName     = "Bitstamp"
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second

	subscribeEvent   = "bts:subscribe"
	subscribedEvent  = "bts:subscription_succeeded"
	dataEvent        = "data"
	orderbookChannel = "order_book_"
)

// Config carries the Bitstamp-specific connection settings.
type Config struct {
	WSURL      string
	Reconnect  bool
	MaxRetries int
}

// Feed streams the Bitstamp live order book channel. Unlike Binance the
// subscription is a frame exchange: a bts:subscribe request that must be
// acknowledged before data flows.
type Feed struct {
	cfg Config
}

// New creates a Bitstamp feed from config, filling unset values.
func New(cfg Config) *Feed {
	if cfg.WSURL == "" {
		cfg.WSURL = "wss://ws.bitstamp.net"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	return &Feed{cfg: cfg}
}

func (f *Feed) Name() string { return exchangeName }

// Stream opens the order book stream for pair. Pairs outside Bitstamp's
// supported list fail synchronously with ErrInvalidPair; the registry treats
// that as this source being unavailable for the pair.
func (f *Feed) Stream(ctx context.Context, pair domain.TradedPair) (<-chan domain.ExchangeBook, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	if !supportedPairs[pair.SymbolLower()] {
		return nil, fmt.Errorf("%w: %s is not supported by Bitstamp", domain.ErrInvalidPair, pair)
	}

	w := &worker{
		url:     f.cfg.WSURL,
		channel: orderbookChannel + pair.SymbolLower(),
		cfg:     f.cfg,
		out:     make(chan domain.ExchangeBook, 16),
	}
	go w.connectionLoop(ctx)
	return w.out, nil
}

type envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type subscribeRequest struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

type bookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// worker owns one websocket connection and the outbound snapshot channel.
type worker struct {
	url     string
	channel string
	cfg     Config
	out     chan domain.ExchangeBook
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
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
			slog.Warn("Bitstamp connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			if !w.cfg.Reconnect || !domain.IsRetriable(err) {
				return
			}
			retryCount++
			if retryCount > w.cfg.MaxRetries {
				slog.Error("Bitstamp retry budget exhausted, source terminating", slog.String("channel", w.channel))
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

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("Bitstamp connected", slog.String("channel", w.channel))
	return nil
}

// subscribe sends the channel subscription request and waits for the ack.
// Anything but a success ack is a handshake failure, which is not retried.
func (w *worker) subscribe() error {
	req := subscribeRequest{
		Event: subscribeEvent,
		Data:  subscribeData{Channel: w.channel},
	}
	b, _ := json.Marshal(req)
	if err := w.threadSafeWrite(websocket.TextMessage, b); err != nil {
		return domain.NewNetworkError("subscribe", err)
	}

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return domain.NewNetworkError("subscribe ack", err)
	}

	var ack envelope
	if json.Unmarshal(msg, &ack) != nil || ack.Event != subscribedEvent {
		return domain.NewFatalNetworkError("subscribe ack",
			fmt.Errorf("%w: unexpected response %q", domain.ErrHandshakeFailed, msg))
	}
	return nil
}

func (w *worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
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
			slog.Warn("Bitstamp read failed", slog.Any("error", err))
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

// parseFrame normalizes one live order book frame. Non-data events and
// undecodable frames are skipped without terminating the stream.
func (w *worker) parseFrame(msg []byte) (domain.ExchangeBook, bool) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Bitstamp undecodable frame", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}
	if env.Event != dataEvent {
		return domain.ExchangeBook{}, false
	}

	var data bookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Bitstamp bad book payload", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}

	bids, err := feed.ParseLevels(data.Bids, domain.DefaultDepth)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Bitstamp bad bid level", slog.Any("error", err))
		return domain.ExchangeBook{}, false
	}
	asks, err := feed.ParseLevels(data.Asks, domain.DefaultDepth)
	if err != nil {
		infra.GlobalMetrics.RecordDecodeError()
		slog.Debug("Bitstamp bad ask level", slog.Any("error", err))
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
