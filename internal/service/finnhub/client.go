package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	drepo "StagAlgo/internal/domain/repository"
	applogger "StagAlgo/pkg/logger"

	"github.com/gorilla/websocket"
)

var errNotConnected = errors.New("finnhub not connected")

// Client streams trades from the Finnhub WebSocket feed.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu        sync.Mutex
	wmu       sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type Option func(*Client)

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.l = l.With("finnhub")
		}
	}
}

// New creates a Finnhub MarketStream. Symbols are upper-cased.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, opts ...Option) *Client {
	syms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			syms = append(syms, s)
		}
	}
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	c := &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        syms,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return "", fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.l.Info("finnhub connected", applogger.Int("symbols", len(c.symbols)))
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.conn
}

func (c *Client) write(conn *websocket.Conn, fn func(*websocket.Conn) error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return fn(conn)
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(_ context.Context) error {
	conn := c.current()
	if conn == nil {
		return errNotConnected
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.write(conn, func(ws *websocket.Conn) error { return ws.WriteJSON(msg) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.l.Debug("finnhub subscribed", applogger.String("symbol", s))
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams trades until ctx ends or the connection fails. The error
// channel carries at most one error, after which both channels close.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- errNotConnected
		close(trades)
		close(errs)
		return trades, errs
	}

	done := make(chan struct{})
	go c.pingLoop(ctx, conn, done)

	go func() {
		defer close(done)
		defer close(trades)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var m fhMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				trade := &models.Trade{Symbol: d.S, Timestamp: d.T, Price: d.P, Volume: d.V}
				select {
				case trades <- trade:
				case <-ctx.Done():
					return
				default:
					c.l.Warn("finnhub backpressure, trade dropped", applogger.String("symbol", d.S))
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	return trades, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, func(ws *websocket.Conn) error {
				return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}); err != nil {
				c.l.Warn("finnhub ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect closes the current connection, waits the reconnect delay and
// connects and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	if c.reconnectDelay > 0 {
		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ drepo.MarketStream = (*Client)(nil)
