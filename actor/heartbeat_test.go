package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// quietBehavior answers nothing but system messages, so every PingMsg it
// receives is handled by DefaultReceive's slot.store and nothing else.
type quietBehavior struct{}

func (quietBehavior) Receive(ctx context.Context, self *ActorHandle, msg Message) ReceiveAction {
	return DefaultReceive(ctx, self, msg)
}

// S5: heartbeat liveness end-to-end — start the periodic heartbeat job
// against live actors and observe at least 4 HeartbeatEvent notifications
// per actor, each reporting a cycle the actor actually responded to.
func TestHeartbeatLiveness(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 15 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	sys := NewActorSystem("heartbeat-test", cfg, zap.NewNop(), nil)
	t.Cleanup(func() {
		sys.RequestTermination()
		sys.Wait()
	})

	const wantActors = 2
	ids := make([]string, 0, wantActors)
	for i := 0; i < wantActors; i++ {
		b, _ := NewActor(sys, idFor(i), quietBehavior{}, 4)
		sys.Spawn(b)
		ids = append(ids, idFor(i))
	}

	sys.StartHeartbeats()
	t.Cleanup(sys.StopHeartbeats)

	seen := make(map[string]int)
	lastCycle := make(map[string]uint64)

	deadline := time.After(3 * time.Second)
	for {
		allEnough := len(seen) == wantActors
		for _, id := range ids {
			if seen[id] < 4 {
				allEnough = false
			}
		}
		if allEnough {
			break
		}

		select {
		case ev := <-sys.Heartbeats():
			require.True(t, ev.Responded, "actor %s should have responded to ping by cycle %d", ev.ActorID, ev.Cycle)
			assert.GreaterOrEqual(t, ev.Cycle, lastCycle[ev.ActorID], "reported cycle must not go backwards")
			lastCycle[ev.ActorID] = ev.Cycle
			seen[ev.ActorID]++
		case <-deadline:
			t.Fatalf("timed out waiting for heartbeat notifications, got %v", seen)
		}
	}

	for _, id := range ids {
		assert.GreaterOrEqual(t, seen[id], 4, "actor %s should have received >=4 heartbeat notifications", id)
	}
}

func idFor(i int) string {
	names := []string{"alpha", "beta", "gamma", "delta"}
	return names[i%len(names)]
}
