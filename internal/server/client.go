// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client represents one live connection to a remote peer. The hub owns the
// client's lifetime exclusively; every other component refers to it only by
// its connection id. A client may or may not have a session — that binding
// lives in the registry, never here.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	closed bool
	log    *zap.Logger
}

// NewClient creates a Client with a fresh opaque connection id for the given
// WebSocket connection. The send channel is buffered so fan-out to this
// client never blocks the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}

	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    hub,
		addr:   addr,
		closed: false,
		log:    hub.log,
	}
}

// ID returns the client's opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.log.Warn("Error setting initial read deadline",
			zap.String("addr", c.addr), zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs the error by category and returns true when the read
// loop should stop. A transport drop is an implicit disconnect, never a
// process-level fault.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("Message exceeded maximum size",
			zap.String("addr", c.addr), zap.Int64("limit", c.hub.cfg.MaxMessageSize))
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("Client disconnected",
			zap.String("addr", c.addr), zap.Error(err))
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("Client connection closed",
			zap.String("addr", c.addr), zap.Error(err))
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("Unexpected WebSocket error",
			zap.String("addr", c.addr), zap.Error(err))
		return true
	}

	c.log.Warn("WebSocket read error",
		zap.String("addr", c.addr), zap.Error(err))
	return true
}

// processFrame decodes a raw frame into an event envelope and hands it to the
// hub's run loop. Malformed frames are dropped without closing the connection.
func (c *Client) processFrame(rawFrame []byte) bool {
	var env Envelope
	if err := json.Unmarshal(rawFrame, &env); err != nil {
		c.log.Debug("Invalid frame",
			zap.String("addr", c.addr), zap.Error(err))
		return false
	}
	if env.Event == "" {
		c.log.Debug("Frame missing event name", zap.String("addr", c.addr))
		return false
	}

	select {
	case c.hub.inbound <- inboundEvent{client: c, envelope: env}:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("Error closing connection in readPump", zap.Error(err))
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawFrame, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		c.processFrame(rawFrame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-c.send:
		return c.handleFrame(frame, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected
// failures.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in writePump", zap.Error(err))
		}
	}
}

// handleFrame writes one outgoing frame and returns false if the connection
// should be closed.
func (c *Client) handleFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("Error setting write deadline",
			zap.String("addr", c.addr), zap.Error(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextFrame(frame)
}

// writeCloseMessage sends a close message to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message",
				zap.String("addr", c.addr), zap.Error(err))
		}
	}
	return false
}

// writeTextFrame writes a frame to the connection. Queued frames are written
// as separate WebSocket messages so each arrives as a complete JSON envelope.
func (c *Client) writeTextFrame(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Warn("Error writing frame",
			zap.String("addr", c.addr), zap.Error(err))
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			c.log.Warn("Error writing queued frame",
				zap.String("addr", c.addr), zap.Error(err))
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.Warn("Error setting write deadline for ping",
			zap.String("addr", c.addr), zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing ping message",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return false
	}
	return true
}
