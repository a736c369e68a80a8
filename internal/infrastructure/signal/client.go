package signal

import (
	"time"

	"streamfy/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ClientConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// Client is one websocket connection. The send channel is written only by
// the hub goroutine and drained by WritePump.
type Client struct {
	ID          domain.ConnectionID
	Identity    domain.Identity
	DisplayName string
	ConnectedAt time.Time

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	cfg     ClientConfig
	logger  *zap.SugaredLogger

	// hub-owned
	dropped  bool
	channels map[domain.ChannelID]struct{}
}

func NewClient(id domain.ConnectionID, conn *websocket.Conn, identity domain.Identity, displayName string, limiter *rate.Limiter, cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	return &Client{
		ID:          id,
		Identity:    identity,
		DisplayName: displayName,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, cfg.SendBuffer),
		limiter:     limiter,
		cfg:         cfg,
		logger:      logger.With("connection_id", string(id)),
		channels:    make(map[domain.ChannelID]struct{}),
	}
}

// Allow reports whether the client is within its inbound message rate.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump reads frames until the connection fails and hands each to
// handle. It returns when the client is gone.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Infow("WebSocket read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		handle(c, data)
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings. A closed send channel ends the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debugw("WebSocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// Close tears down the underlying connection; both pumps will exit.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
