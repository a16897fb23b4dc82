package spaserver

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnectionBufferFull is returned when a connection's outbound buffer
// has no free capacity; the connection registry treats this as fatal for
// that connection (see hub.go's sendTo).
var ErrConnectionBufferFull = connBufferFullError{}

type connBufferFullError struct{}

func (connBufferFullError) Error() string { return "spaserver: connection send buffer full" }

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// Connection is the per-client record described in spec.md §3: remote
// address, outbound sink, and a handle to the inbound reader task. Services
// write to a Connection directly (never through the server actor) so that
// InitConnection structurally cannot deadlock the server mailbox — this is
// this port's resolution of spec.md §9's init_connection Open Question.
type Connection struct {
	RemoteAddr string
	ws         *websocket.Conn
	send       chan []byte

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func newConnection(remoteAddr string, ws *websocket.Conn, bufSize int, cancel context.CancelFunc) *Connection {
	return &Connection{RemoteAddr: remoteAddr, ws: ws, send: make(chan []byte, bufSize), cancel: cancel}
}

// Write queues data for the connection's write pump. Non-blocking: if the
// buffer is full (or the connection is already closed) it returns
// ErrConnectionBufferFull rather than back-pressuring the caller. Write does
// not close the connection itself; hub.sendTo closes and evicts it on that
// error (matching the teacher's Hub.sendToConnection eviction behavior).
func (c *Connection) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionBufferFull
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrConnectionBufferFull
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	_ = c.ws.Close()
}

// writePump owns the websocket connection's write side: a periodic ping
// plus draining the outbound buffer, mirroring the teacher's
// services/conn_rpc/handler/websocket.go writePump.
func (c *Connection) writePump(ctx context.Context, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns the read side: it reads text frames until close/error and
// forwards each to onFrame. Binary frames are ignored per spec.md §6.
func (c *Connection) readPump(ctx context.Context, logger *zap.Logger, onFrame func([]byte), onClose func()) {
	defer onClose()
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			logger.Debug("websocket read exited", zap.String("remote_addr", c.RemoteAddr), zap.Error(err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onFrame(data)
	}
}
