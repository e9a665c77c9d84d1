package barfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a BarStream backed by the upstream WebSocket feed.
// The feed publishes completed one-minute bars; partial bars are never sent.
type Client struct {
	apiKey         string
	websocketURL   string
	symbol         string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new WebSocket BarStream.
func New(apiKey, websocketURL, symbol string, reconnectDelay, pingInterval time.Duration) drepo.BarStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbol:         symbol,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.websocketURL
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("barfeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("barfeed: connected")
	return nil
}

// Subscribe subscribes to the configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("barfeed not connected")
	}
	msg := map[string]string{"type": "subscribe", "symbol": c.symbol, "resolution": "1"}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.symbol, err)
	}
	log.Printf("barfeed: subscribed %s", c.symbol)
	return nil
}

type wsBar struct {
	S string  `json:"s"`
	T int64   `json:"t"` // minute start, ms
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

type wsMessage struct {
	Type string  `json:"type"`
	Data []wsBar `json:"data"`
}

// Read streams completed bars and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(bars)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("barfeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("barfeed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-bar frames
					continue
				}
				if m.Type != "bar" {
					continue
				}
				for _, d := range m.Data {
					bar := &models.Bar{
						Symbol: d.S,
						Ts:     time.UnixMilli(d.T).UTC(),
						Open:   d.O,
						High:   d.H,
						Low:    d.L,
						Close:  d.C,
					}
					select {
					case bars <- bar:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return bars, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
