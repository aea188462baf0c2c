// Package gateway is the WebSocket edge: it upgrades and authenticates
// connections, pumps frames in and out, and drives each session through
// its lifecycle against the domain collaborators.
package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 << 10
)

// envelope is the wire frame: every message in either direction carries an
// event name and a payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client owns one upgraded WebSocket connection: the buffered outbound
// queue, the write pump, and the read deadline bookkeeping. It is the
// registry's connection handle.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, sendBuffer int, logger *zap.Logger) *Client {
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues a server event for the write pump. Non-blocking: a full
// buffer or a closed connection yields false and the caller decides what
// the miss means.
func (c *Client) Send(event string, payload any) bool {
	data, err := json.Marshal(outEnvelope{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("failed to encode outbound event", zap.String("event", event), zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call more than once and from
// any goroutine; the read loop unblocks with an error.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. One writer per connection; gorilla allows at most one
// concurrent writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// prepareRead arms the read deadline and refreshes it on every pong.
func (c *Client) prepareRead() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) readMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}
