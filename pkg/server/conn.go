package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-oriented client connection. The transport owns it; a
// Session only reads, writes and closes.
//
// ReadMessage is called from one goroutine. WriteMessage may be called
// concurrently and implementations must serialize writes.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Pinger is implemented by connections that support keep-alive pings.
type Pinger interface {
	Ping() error
}

// WebSocketConn adapts a gorilla WebSocket connection to Conn. Packets travel
// in binary messages.
type WebSocketConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	mu           sync.Mutex
}

// NewWebSocketConn wraps conn. The read deadline is extended on every
// message and pong.
func NewWebSocketConn(conn *websocket.Conn, cfg *SessionConfig) *WebSocketConn {
	cfg = cfg.withDefaults()
	c := &WebSocketConn{
		conn:         conn,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
	conn.SetReadLimit(int64(cfg.MaxPacketSize) + 8)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})
	return c
}

// ReadMessage implements Conn.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteMessage implements Conn.
func (c *WebSocketConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Ping implements Pinger.
func (c *WebSocketConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close sends a normal close frame and closes the socket.
func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.mu.Unlock()
	return c.conn.Close()
}

// isNormalClose reports whether err is an orderly end of the connection.
func isNormalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
