package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chathub/pkg/logger"
	"chathub/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds per-connection backlog; a full buffer drops the
	// connection rather than blocking the hub.
	sendBuffer = 256
)

// Client is one live websocket connection attached to the hub. Reads and
// writes each run in their own pump goroutine; the hub only ever touches
// the buffered send channel.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       string
	identity string

	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection. identity may be
// empty; the connection then stays unbound. readLimit bounds inbound
// frame size (attachments travel base64 inside frames).
func NewClient(h *Hub, conn *websocket.Conn, identity string, readLimit int64) *Client {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       utils.GenConnID(),
		identity: identity,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Start attaches the client to the hub and launches both pumps.
func (c *Client) Start() {
	c.hub.Attach(c.id, c.identity, c)
	go c.writePump()
	go c.readPump()
}

// Send queues an event for delivery. Returns false when the connection
// cannot take it; the hub detaches such connections.
func (c *Client) Send(ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("event_marshal_failed", zap.String("type", ev.Type), zap.Error(err))
		return true // nothing to deliver, but the connection is fine
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call more than once; the
// pumps unwind and the read pump detaches from the hub.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readPump consumes client frames until the connection dies. Malformed
// JSON is logged and skipped; the connection stays up.
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c.id)
		c.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("websocket_read_error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			droppedFrames.Inc()
			logger.Log.Debug("malformed_frame", zap.String("conn", c.id), zap.Error(err))
			continue
		}
		c.hub.Handle(c.id, f)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
