package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livechat-service/internal/chat"
)

const writeWait = 10 * time.Second

// Conn is the subset of *websocket.Conn the registry needs. Tests substitute
// in-memory fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type entry struct {
	conn Conn
	info ConnInfo
}

// Registry maps user ids to their live connection. It is the only in-memory
// mutable state of the subsystem and is owned exclusively by it. At most one
// connection per user: a new registration overwrites the previous entry and
// closes the abandoned connection.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int]entry
	byConn map[Conn]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int]entry),
		byConn: make(map[Conn]int),
	}
}

// Register stores the connection for the user, replacing and closing any
// previous one.
func (r *Registry) Register(userID int, conn Conn, info ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byUser[userID]; ok && prev.conn != conn {
		delete(r.byConn, prev.conn)
		prev.conn.Close()
	}
	r.byUser[userID] = entry{conn: conn, info: info}
	r.byConn[conn] = userID
}

// Unregister removes the connection if it is still the user's current one.
// It returns the user id the connection was registered under.
func (r *Registry) Unregister(conn Conn) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn]
	if !ok {
		return 0, false
	}
	delete(r.byConn, conn)
	if current, exists := r.byUser[userID]; exists && current.conn == conn {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Lookup returns the live connection for the user, if any.
func (r *Registry) Lookup(userID int) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byUser[userID]
	return e.conn, ok
}

// Push writes an event frame to the user's connection. It returns
// chat.ErrNotConnected when the user has no live connection. A write failure
// evicts the connection so a stalled peer cannot stall the handler again.
func (r *Registry) Push(userID int, event string, payload any) error {
	r.mu.RLock()
	e, ok := r.byUser[userID]
	r.mu.RUnlock()
	if !ok {
		return chat.ErrNotConnected
	}

	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	e.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := e.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("websocket write error for user %d: %v", userID, err)
		r.Unregister(e.conn)
		e.conn.Close()
		return err
	}
	return nil
}

// Close drops every live connection; used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.byConn {
		conn.Close()
	}
	r.byUser = make(map[int]entry)
	r.byConn = make(map[Conn]int)
}

// Envelope wraps every frame exchanged over the live-chat socket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
