// Package demo is an illustrative situational-awareness feed: a small actor
// that ticks on a repeat timer and notifies the SPA Server of new data,
// exercising actor repeat timers end-to-end alongside the
// DataAvailable/WebSocket dispatch path real feeds (ADS-B, AIS, weather)
// would also use.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/odin-fire/odin-go/actor"
	"github.com/odin-fire/odin-go/spaserver"
)

const (
	timerID  = "demo-tick"
	modPath  = "demo"
	dataType = "demo-feed"
)

// Feed is both an actor.Behavior (the producer, ticking on its own repeat
// timer) and a spaserver.SpaService (contributing the module asset and the
// websocket frame handler for browser clients).
type Feed struct {
	spaserver.BaseService

	interval time.Duration
	server   *actor.ActorHandle
	logger   *zap.Logger

	counter atomic.Uint64
}

// NewFeed returns a feed actor behavior that ticks every interval and
// notifies server via spaserver.DataAvailable.
func NewFeed(interval time.Duration, server *actor.ActorHandle, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{interval: interval, server: server, logger: logger}
}

type tickPayload struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Receive implements actor.Behavior: on Start it arms a repeat timer; on
// each fired TimerMsg it produces the next sample and notifies the server.
func (f *Feed) Receive(ctx context.Context, self *actor.ActorHandle, msg actor.Message) actor.ReceiveAction {
	switch m := msg.(type) {
	case actor.StartMsg:
		self.StartRepeatTimer(timerID, f.interval, false)
		return actor.Continue
	case actor.TimerMsg:
		if m.ID != timerID {
			return actor.Continue
		}
		f.produce(ctx, self)
		return actor.Continue
	default:
		return actor.DefaultReceive(ctx, self, msg)
	}
}

func (f *Feed) produce(ctx context.Context, self *actor.ActorHandle) {
	seq := f.counter.Add(1)
	payload, err := json.Marshal(tickPayload{Seq: seq, At: time.Now()})
	if err != nil {
		f.logger.Error("demo feed failed to marshal tick", zap.Error(err))
		return
	}
	if err := spaserver.BroadcastWsMsg(ctx, f.server, modPath, "tick", payload); err != nil {
		f.logger.Debug("demo feed broadcast failed", zap.Error(err))
	}
	if err := spaserver.DataAvailable(ctx, f.server, self.ID(), dataType); err != nil {
		f.logger.Debug("demo feed DataAvailable notify failed", zap.Error(err))
	}
}

// --- spaserver.SpaService ----------------------------------------------

func (f *Feed) AddComponents(spa *spaserver.SpaComponents) {
	spa.AddModule(fmt.Sprintf("asset/%s/demo.js", modPath))
	spa.AddBodyFragment(`<div id="demo-feed"></div>`)
	spa.AddAssets(modPath, f.lookupAsset)
}

func (f *Feed) IsWebsocket() bool { return true }

func (f *Feed) HandleIncomingWsMsg(conn *spaserver.Connection, frame spaserver.WsFrame) error {
	if frame.ModPath != modPath {
		return nil
	}
	f.logger.Debug("demo feed received ws frame", zap.String("msg_type", frame.MsgType))
	return nil
}

func (f *Feed) lookupAsset(filename string) ([]byte, error) {
	if filename != "demo.js" {
		return nil, fmt.Errorf("demo: unknown asset %q", filename)
	}
	return []byte(demoModuleJS), nil
}

const demoModuleJS = `
let seen = 0;
export function postInitialize() {
  console.log('demo feed module initialized');
}
export function onTick(payload) {
  seen += 1;
  document.getElementById('demo-feed').textContent = 'tick #' + payload.seq + ' (' + seen + ' seen)';
}
`
