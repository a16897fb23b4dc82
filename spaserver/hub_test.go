package spaserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHubConn() *Connection {
	return newConnection("10.0.0.1:1234", nil, 8, func() {})
}

func drain(t *testing.T, conn *Connection) string {
	t.Helper()
	select {
	case data := <-conn.send:
		return string(data)
	default:
		t.Fatalf("expected a queued message, found none")
		return ""
	}
}

func TestHub_SendToUnicast(t *testing.T) {
	h := newHub(zap.NewNop())
	a, b := newTestHubConn(), newTestHubConn()
	h.add("a", a)
	h.add("b", b)

	h.sendTo("a", []byte("hello"))

	assert.Equal(t, "hello", drain(t, a))
	assert.Empty(t, b.send, "unicast must not reach other connections")
}

func TestHub_Broadcast(t *testing.T) {
	h := newHub(zap.NewNop())
	a, b := newTestHubConn(), newTestHubConn()
	h.add("a", a)
	h.add("b", b)

	h.broadcast([]byte("ping"))

	assert.Equal(t, "ping", drain(t, a))
	assert.Equal(t, "ping", drain(t, b))
}

func TestHub_BroadcastExcept(t *testing.T) {
	h := newHub(zap.NewNop())
	a, b := newTestHubConn(), newTestHubConn()
	h.add("a", a)
	h.add("b", b)

	h.broadcastExcept("a", []byte("ping"))

	assert.Empty(t, a.send, "sender must be excluded")
	assert.Equal(t, "ping", drain(t, b))
}

func TestHub_SendGroup(t *testing.T) {
	h := newHub(zap.NewNop())
	a, b, c := newTestHubConn(), newTestHubConn(), newTestHubConn()
	h.add("a", a)
	h.add("b", b)
	h.add("c", c)
	h.joinGroup("room1", "a")
	h.joinGroup("room1", "b")

	h.sendGroup("room1", []byte("hi room"))

	assert.Equal(t, "hi room", drain(t, a))
	assert.Equal(t, "hi room", drain(t, b))
	assert.Empty(t, c.send, "non-member must not receive the group message")
}

func TestHub_LeaveGroupStopsDelivery(t *testing.T) {
	h := newHub(zap.NewNop())
	a := newTestHubConn()
	h.add("a", a)
	h.joinGroup("room1", "a")
	h.leaveGroup("room1", "a")

	h.sendGroup("room1", []byte("hi room"))

	assert.Empty(t, a.send)
}

func TestHub_RemoveDropsFromGroupsToo(t *testing.T) {
	h := newHub(zap.NewNop())
	a := newTestHubConn()
	h.add("a", a)
	h.joinGroup("room1", "a")

	h.remove("a")

	require.Equal(t, 0, h.count())
	h.sendGroup("room1", []byte("hi"))
	assert.Empty(t, a.send, "removed connection must no longer be a group member")
}

func TestHub_CountTracksAddAndRemove(t *testing.T) {
	h := newHub(zap.NewNop())
	assert.Equal(t, 0, h.count())

	h.add("a", newTestHubConn())
	h.add("b", newTestHubConn())
	assert.Equal(t, 2, h.count())

	h.remove("a")
	assert.Equal(t, 1, h.count())
}

func TestHub_SendToUnknownIDIsNoOp(t *testing.T) {
	h := newHub(zap.NewNop())
	h.sendTo("ghost", []byte("x")) // must not panic
}
