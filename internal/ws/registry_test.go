package ws

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livechat-service/internal/chat"
)

type fakeConn struct {
	frames   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register(7, conn, ConnInfo{ConnID: "c1", UserID: 7})

	got, ok := registry.Lookup(7)
	require.True(t, ok)
	require.Same(t, conn, got.(*fakeConn))

	_, ok = registry.Lookup(8)
	require.False(t, ok)
}

func TestRegistryLastConnectionWins(t *testing.T) {
	registry := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	registry.Register(7, first, ConnInfo{ConnID: "c1"})
	registry.Register(7, second, ConnInfo{ConnID: "c2"})

	got, ok := registry.Lookup(7)
	require.True(t, ok)
	require.Same(t, second, got.(*fakeConn))
	assert.True(t, first.closed, "abandoned connection should be closed")

	// the stale connection must not evict the new one
	_, ok = registry.Unregister(first)
	require.False(t, ok)
	_, ok = registry.Lookup(7)
	require.True(t, ok)
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register(7, conn, ConnInfo{})

	userID, ok := registry.Unregister(conn)
	require.True(t, ok)
	require.Equal(t, 7, userID)

	_, ok = registry.Lookup(7)
	require.False(t, ok)
}

func TestRegistryPushWritesEnvelope(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}
	registry.Register(7, conn, ConnInfo{})

	require.NoError(t, registry.Push(7, "receive message", []string{"hello"}))
	require.Len(t, conn.frames, 1)

	var frame Envelope
	require.NoError(t, json.Unmarshal(conn.frames[0], &frame))
	assert.Equal(t, "receive message", frame.Event)
}

func TestRegistryPushOfflineUser(t *testing.T) {
	registry := NewRegistry()

	err := registry.Push(7, "receive message", nil)
	require.ErrorIs(t, err, chat.ErrNotConnected)
}

func TestRegistryPushWriteFailureEvicts(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	registry.Register(7, conn, ConnInfo{})

	err := registry.Push(7, "receive message", nil)
	require.Error(t, err)
	assert.True(t, conn.closed)

	_, ok := registry.Lookup(7)
	require.False(t, ok)
}

func TestRegistryClose(t *testing.T) {
	registry := NewRegistry()
	a := &fakeConn{}
	b := &fakeConn{}
	registry.Register(1, a, ConnInfo{})
	registry.Register(2, b, ConnInfo{})

	registry.Close()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	_, ok := registry.Lookup(1)
	require.False(t, ok)
}
