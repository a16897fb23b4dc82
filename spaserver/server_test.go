package spaserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odin-fire/odin-go/actor"
)

// fakeService is a minimal SpaService used to observe dispatch from Server's
// Receive without standing up a real websocket.
type fakeService struct {
	BaseService

	mu           sync.Mutex
	dataAvail    []string
	incomingSeen []WsFrame
}

func (f *fakeService) AddComponents(*SpaComponents) {}

func (f *fakeService) DataAvailable(server *actor.ActorHandle, senderID, dataType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataAvail = append(f.dataAvail, senderID+":"+dataType)
}

func (f *fakeService) IsWebsocket() bool { return true }

func (f *fakeService) HandleIncomingWsMsg(conn *Connection, frame WsFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incomingSeen = append(f.incomingSeen, frame)
	return nil
}

func (f *fakeService) snapshot() ([]string, []WsFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dataAvail...), append([]WsFrame(nil), f.incomingSeen...)
}

func newTestServerSystem(t *testing.T) (*actor.ActorSystem, *actor.ActorHandle, *Server) {
	t.Helper()
	cfg := actor.DefaultConfig()
	cfg.ShutdownTimeout = time.Second
	sys := actor.NewActorSystem("test", cfg, zap.NewNop(), nil)
	t.Cleanup(func() {
		sys.RequestTermination()
		sys.Wait()
	})

	svc := &fakeService{}
	server := NewServer(DefaultServerConfig("test", "127.0.0.1:0"), []SpaService{svc}, zap.NewNop())
	builder, handle := actor.NewActor(sys, "spa-server", server, 8)
	sys.Spawn(builder)
	return sys, handle, server
}

func TestServer_DataAvailableFansOutToServices(t *testing.T) {
	_, handle, server := newTestServerSystem(t)
	svc := server.services[0].(*fakeService)

	ctx := context.Background()
	require.NoError(t, DataAvailable(ctx, handle, "feed-1", "demo-feed"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		seen, _ := svc.snapshot()
		if len(seen) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	seen, _ := svc.snapshot()
	assert.Equal(t, []string{"feed-1:demo-feed"}, seen)
}

func TestServer_ConnectionLifecycleThroughHub(t *testing.T) {
	_, handle, server := newTestServerSystem(t)
	ctx := context.Background()

	conn := newConnection("9.9.9.9:1", nil, 4, func() {})
	require.NoError(t, handle.Send(ctx, addConnectionMsg{id: "c1", conn: conn}))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && server.hub.count() != 1 {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, server.hub.count())

	payload, _ := json.Marshal(map[string]string{"hello": "world"})
	require.NoError(t, BroadcastWsMsg(ctx, handle, "demo", "tick", payload))

	deadline = time.Now().Add(time.Second)
	var frame []byte
	for time.Now().Before(deadline) {
		select {
		case frame = <-conn.send:
		default:
		}
		if frame != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, frame)

	var decoded WsFrame
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "demo", decoded.ModPath)
	assert.Equal(t, "tick", decoded.MsgType)

	require.NoError(t, handle.Send(ctx, removeConnectionMsg{id: "c1"}))
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && server.hub.count() != 0 {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, server.hub.count())
}

func TestServer_IncomingFrameDispatchedToServices(t *testing.T) {
	_, handle, server := newTestServerSystem(t)
	svc := server.services[0].(*fakeService)
	ctx := context.Background()

	conn := newConnection("9.9.9.9:2", nil, 4, func() {})
	frame := WsFrame{ModPath: "demo", MsgType: "poke"}
	require.NoError(t, handle.Send(ctx, incomingWsFrameMsg{connID: "c2", conn: conn, frame: frame}))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, seen := svc.snapshot()
		if len(seen) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_, seen := svc.snapshot()
	require.Len(t, seen, 1)
	assert.Equal(t, frame, seen[0])
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/wasm", contentTypeFor("module.wasm"))
	assert.Contains(t, contentTypeFor("app.js"), "javascript")
	assert.Equal(t, "application/octet-stream", contentTypeFor("module.unknownext"))
}
