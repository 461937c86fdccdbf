package ws

import (
	"sync"
	"time"
)

// wsConn is the raw connection surface lockedConn wraps. *websocket.Conn
// satisfies it.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// lockedConn serializes writes to one websocket connection. Registry pushes
// run on service goroutines while the read loop replies with error frames on
// its own, and gorilla/websocket supports at most one concurrent writer.
type lockedConn struct {
	mu   sync.Mutex
	conn wsConn
}

func newLockedConn(conn wsConn) *lockedConn {
	return &lockedConn{conn: conn}
}

func (c *lockedConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *lockedConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *lockedConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.SetWriteDeadline(t)
}

func (c *lockedConn) Close() error {
	return c.conn.Close()
}
