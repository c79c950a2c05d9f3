package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StreamCast/internal/domain/models"
	drepo "StreamCast/internal/domain/repository"
	"StreamCast/pkg/logger"
)

// Client implements a MetricStream backed by a WebSocket metric feed.
type Client struct {
	url            string
	source         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new feed MetricStream.
func New(url, source string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) drepo.MetricStream {
	if log == nil {
		log = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		url:            url,
		source:         source,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("feed connected", logger.String("url", c.url))
	return nil
}

// Subscribe asks the feed for the configured source.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	msg := map[string]string{"type": "subscribe", "source": c.source}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.source, err)
	}
	c.log.Info("feed subscribed", logger.String("source", c.source))
	return nil
}

type sample struct {
	S string  `json:"s"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string   `json:"type"`
	Data []sample `json:"data"`
}

// Read streams samples and errors. Samples are never dropped; the read loop
// blocks until the consumer catches up.
func (c *Client) Read(ctx context.Context) (<-chan *models.MetricRecord, <-chan error) {
	records := make(chan *models.MetricRecord, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	stop := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn == conn && conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(records)
		defer close(errs)
		defer close(stop)
		if conn == nil {
			errs <- fmt.Errorf("feed conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil || f.Type != "metric" {
				continue
			}
			for _, d := range f.Data {
				src := d.S
				if src == "" {
					src = c.source
				}
				rec := &models.MetricRecord{Source: src, Timestamp: d.T / 1000, Value: d.V}
				select {
				case records <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return records, errs
}

// Reconnect closes, waits reconnectDelay, and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
