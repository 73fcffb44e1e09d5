package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSFeedConfig configures WebSocket price feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxStaleness bounds how old a cached price may be and still be served.
	MaxStaleness time.Duration
}

// DefaultWSFeedConfig returns default feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxStaleness:      15 * time.Second,
	}
}

// cachedPrice is one instrument's last observed mid.
type cachedPrice struct {
	price float64
	at    time.Time
}

// WSPriceFeed keeps a live mark-price cache fed by the exchange
// WebSocket stream. MarkPrice never blocks on the network: it serves
// the cache and reports ErrUnavailable when the entry is missing or
// older than the staleness bound, letting the chain fall through to a
// REST source while the feed reconnects in the background.
type WSPriceFeed struct {
	endpoint string
	config   WSFeedConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	prices   map[string]cachedPrice
	pricesMu sync.RWMutex

	// now is injectable for staleness tests
	now func() time.Time

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSPriceFeed connects to the endpoint, subscribes to the mids stream,
// and starts the reader and ping loops.
func NewWSPriceFeed(ctx context.Context, endpoint string, config *WSFeedConfig) (*WSPriceFeed, error) {
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}

	f := &WSPriceFeed{
		endpoint: endpoint,
		config:   cfg,
		prices:   make(map[string]cachedPrice),
		now:      time.Now,
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}
	if err := f.subscribe(); err != nil {
		f.conn.Close()
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// Compile-time interface check.
var _ PriceSource = (*WSPriceFeed)(nil)

// Name identifies the source in logs and metrics.
func (f *WSPriceFeed) Name() string {
	return "ws-feed"
}

// MarkPrice serves the cached mid for an instrument.
func (f *WSPriceFeed) MarkPrice(_ context.Context, instrument string) (float64, error) {
	f.pricesMu.RLock()
	entry, ok := f.prices[instrument]
	f.pricesMu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%w: no cached price for %s", ErrUnavailable, instrument)
	}
	if f.now().Sub(entry.at) > f.config.MaxStaleness {
		return 0, fmt.Errorf("%w: cached price for %s is stale", ErrUnavailable, instrument)
	}

	return entry.price, nil
}

// Close closes the WebSocket connection and stops the loops.
func (f *WSPriceFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// connect establishes WebSocket connection.
func (f *WSPriceFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// wsSubscribeRequest subscribes to the all-mids stream.
type wsSubscribeRequest struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}

// subscribe sends the mids subscription on the current connection.
func (f *WSPriceFeed) subscribe() error {
	req := wsSubscribeRequest{Method: "subscribe"}
	req.Subscription.Type = "allMids"

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("not connected")
	}

	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := f.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	return nil
}

// readLoop reads messages from WebSocket and refreshes the price cache.
func (f *WSPriceFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (f *WSPriceFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	if err := f.subscribe(); err != nil {
		// Subscribe failed, reader will trigger another reconnect
		return
	}
}

// wsMidsMessage is one all-mids stream frame.
type wsMidsMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

// handleMessage processes incoming WebSocket message.
func (f *WSPriceFeed) handleMessage(message []byte) {
	var msg wsMidsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Channel != "allMids" || len(msg.Data.Mids) == 0 {
		return
	}

	at := f.now()

	f.pricesMu.Lock()
	for instrument, s := range msg.Data.Mids {
		price, err := strconv.ParseFloat(s, 64)
		if err != nil || !validPrice(price) {
			continue
		}
		f.prices[instrument] = cachedPrice{price: price, at: at}
	}
	f.pricesMu.Unlock()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *WSPriceFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			f.connMu.Unlock()
		}
	}
}
