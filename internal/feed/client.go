package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// subscription is the market-channel subscribe frame. Re-sent for every
// tracked asset set on reconnect, which also makes the server reissue full
// book snapshots — that is the resync path.
type subscription struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// keepAlive is the text frame the market channel expects periodically.
const keepAlive = "PING"

// maxSubBatch bounds assets per subscribe frame to keep frames small.
const maxSubBatch = 50

// Client maintains one websocket connection to the market channel,
// replaying subscriptions after every reconnect.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	assets []string
}

func NewClient(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 22)
	c.conn = conn
	return nil
}

// Subscribe registers assets and, when connected, sends the subscribe
// frames immediately. Registered assets are re-subscribed on reconnect.
func (c *Client) Subscribe(ctx context.Context, assets ...string) error {
	if len(assets) == 0 {
		return nil
	}
	c.mu.Lock()
	c.assets = append(c.assets, assets...)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	return sendSubscriptions(ctx, conn, assets)
}

// Resubscribe re-sends subscribe frames for assets on the live connection,
// prompting the server to reissue their full book snapshots.
func (c *Client) Resubscribe(ctx context.Context, assets ...string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	return sendSubscriptions(ctx, conn, assets)
}

// Run reads frames and hands each to handler until ctx is done,
// reconnecting with the configured delay after read failures.
func (c *Client) Run(ctx context.Context, handler func([]byte)) error {
	for {
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logLoopError("ws connect failed", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logLoopError("ws read loop ended", err)
		c.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	assets := append([]string(nil), c.assets...)
	c.mu.Unlock()
	return sendSubscriptions(ctx, conn, assets)
}

func (c *Client) readLoop(ctx context.Context, handler func([]byte)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Write(ctx, websocket.MessageText, []byte(keepAlive)); err != nil {
				return
			}
		}
	}
}

func (c *Client) logLoopError(msg string, err error) {
	if c.log == nil || err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info(msg, zap.Error(err))
		return
	}
	c.log.Warn(msg, zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func sendSubscriptions(ctx context.Context, conn *websocket.Conn, assets []string) error {
	for start := 0; start < len(assets); start += maxSubBatch {
		end := start + maxSubBatch
		if end > len(assets) {
			end = len(assets)
		}
		sub := subscription{AssetsIDs: assets[start:end], Type: "market"}
		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return err
		}
	}
	return nil
}
