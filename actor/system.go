package actor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config bounds the runtime-wide defaults an ActorSystem is built with. It
// is loaded from internal/config (viper) in cmd/odind; tests construct it
// directly.
type Config struct {
	DefaultMailboxBound int
	HeartbeatInterval   time.Duration
	ShutdownTimeout     time.Duration
	SchedulerWorkers    int
}

// DefaultConfig mirrors the bounds the original ODIN runtime ships with.
func DefaultConfig() Config {
	return Config{
		DefaultMailboxBound: defaultMailboxBound,
		HeartbeatInterval:   2 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		SchedulerWorkers:    4,
	}
}

// ActorEntry is the ActorSystem-internal per-registered-actor record:
// identity, type name, a way to address the actor uniformly for system
// messages, a ping-response slot, and the task's cancellation/completion
// signals.
type ActorEntry struct {
	ID       string
	TypeName string
	Handle   *ActorHandle
	doneCh   chan struct{}
	cancel   context.CancelFunc
	slot     *PingSlot
	stats    *PingStats
}

// systemCommand is the closed set of requests the ActorSystem's own command
// loop understands: RequestTermination, RequestHeartbeat, RequestActorOf.
type systemCommand interface{ isSystemCommand() }

type cmdRequestTermination struct{}

func (cmdRequestTermination) isSystemCommand() {}

type cmdRequestHeartbeat struct{}

func (cmdRequestHeartbeat) isSystemCommand() {}

type cmdRequestActorOf struct {
	build func() *ActorBuilder
	done  chan *ActorHandle
}

func (cmdRequestActorOf) isSystemCommand() {}

// ActorSystem is the non-actor command-loop owner described in spec.md
// §4.3: registry of ActorEntry, join set of actor tasks, job scheduler,
// heartbeat job, graceful shutdown.
type ActorSystem struct {
	id     string
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	entries []*ActorEntry // registration order, preserved for doTerminateAll
	byID    map[string]*ActorEntry
	preHandles map[string]*PreActorHandle

	cycle     uint64
	scheduler *Scheduler
	metrics   *heartbeatMetrics

	cmdCh    chan systemCommand
	heartbeats chan HeartbeatEvent

	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	heartbeatCancel context.CancelFunc
}

// NewActorSystem creates an ActorSystem. reg may be nil to skip prometheus
// registration (e.g. in unit tests).
func NewActorSystem(id string, cfg Config, logger *zap.Logger, reg prometheus.Registerer) *ActorSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sys := &ActorSystem{
		id:         id,
		cfg:        cfg,
		logger:     logger.With(zap.String("actor_system", id)),
		byID:       make(map[string]*ActorEntry),
		preHandles: make(map[string]*PreActorHandle),
		scheduler:  NewScheduler(cfg.SchedulerWorkers),
		metrics:    newHeartbeatMetrics(reg),
		cmdCh:      make(chan systemCommand, 64),
		heartbeats: make(chan HeartbeatEvent, 256),
		ctx:        ctx,
		cancel:     cancel,
	}
	sys.wg.Add(1)
	go func() {
		defer sys.wg.Done()
		sys.processCommands()
	}()
	return sys
}

// Heartbeats exposes the optional UI notification channel of per-actor
// liveness events.
func (sys *ActorSystem) Heartbeats() <-chan HeartbeatEvent { return sys.heartbeats }

// Spawn consumes an ActorBuilder (from NewActor or NewPreActor), registers
// an ActorEntry, and starts the actor's task. Returns the same handle the
// builder already carried.
func (sys *ActorSystem) Spawn(b *ActorBuilder) *ActorHandle {
	actorCtx, cancel := context.WithCancel(sys.ctx)
	entry := &ActorEntry{
		ID:       b.id,
		TypeName: typeNameOf(b.behavior),
		Handle:   b.handle,
		doneCh:   make(chan struct{}),
		cancel:   cancel,
		slot:     &PingSlot{},
		stats:    &PingStats{},
	}

	sys.mu.Lock()
	sys.entries = append(sys.entries, entry)
	sys.byID[b.id] = entry
	sys.mu.Unlock()

	sys.wg.Add(1)
	go func() {
		defer sys.wg.Done()
		runActor(actorCtx, sys, entry, b)
	}()

	return b.handle
}

// SpawnFrom lets a running actor ask the ActorSystem to spawn a new actor on
// its behalf via the RequestActorOf command, avoiding exposing the registry
// mutex to arbitrary goroutines. build is invoked on the system's own
// command-loop goroutine.
func (sys *ActorSystem) SpawnFrom(build func() *ActorBuilder) *ActorHandle {
	done := make(chan *ActorHandle, 1)
	sys.cmdCh <- cmdRequestActorOf{build: build, done: done}
	return <-done
}

func (sys *ActorSystem) lookup(id string) *ActorEntry {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.byID[id]
}

func (sys *ActorSystem) actorStopped(entry *ActorEntry) {
	// Entries are intentionally NOT removed from sys.entries/byID on exit:
	// doTerminateAll and heartbeat sweeps still need to account for an actor that
	// stopped on its own so collective operations can report it, matching
	// the original runtime's run_actor loop, which never removes the actor
	// entry either.
}

func (sys *ActorSystem) trackPreHandle(p *PreActorHandle) {
	sys.mu.Lock()
	sys.preHandles[p.id] = p
	sys.mu.Unlock()
}

func (sys *ActorSystem) untrackPreHandle(p *PreActorHandle) {
	sys.mu.Lock()
	delete(sys.preHandles, p.id)
	sys.mu.Unlock()
}

// CheckOrphanedPreHandles logs an error for every PreActorHandle created but
// never spawned. Call this before shutdown to surface the programming error
// spec.md calls for ("a PreActorHandle that is dropped without being
// consumed is a programming error").
func (sys *ActorSystem) CheckOrphanedPreHandles() {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	for id := range sys.preHandles {
		sys.logger.Error("PreActorHandle created but never spawned", zap.String("actor_id", id))
	}
}

// RequestTermination posts a RequestTermination command; idempotent and
// safe to call from any goroutine (signal handler, an actor, or the
// embedding application).
func (sys *ActorSystem) RequestTermination() {
	select {
	case sys.cmdCh <- cmdRequestTermination{}:
	default:
		// command channel full (or system shutting down already) — a
		// termination request already in flight supersedes this one.
	}
}

// RequestHeartbeat posts a RequestHeartbeat command. Normally only the
// heartbeat job does this, but it is exported for tests.
func (sys *ActorSystem) RequestHeartbeat() {
	sys.cmdCh <- cmdRequestHeartbeat{}
}

func (sys *ActorSystem) processCommands() {
	for {
		select {
		case <-sys.ctx.Done():
			return
		case cmd := <-sys.cmdCh:
			switch c := cmd.(type) {
			case cmdRequestTermination:
				sys.logger.Info("termination requested")
				sys.doTerminateAll()
				sys.cancel()
				return
			case cmdRequestHeartbeat:
				sys.doHeartbeatCycle()
			case cmdRequestActorOf:
				b := c.build()
				h := sys.Spawn(b)
				c.done <- h
			}
		}
	}
}

// StartHeartbeats starts the periodic RequestHeartbeat job at cfg's
// configured interval. Calling it twice is a no-op after the first.
func (sys *ActorSystem) StartHeartbeats() {
	if sys.heartbeatCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(sys.ctx)
	sys.heartbeatCancel = cancel
	go func() {
		ticker := time.NewTicker(sys.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sys.RequestHeartbeat()
			}
		}
	}()
}

// StopHeartbeats stops the periodic heartbeat job without affecting
// anything else.
func (sys *ActorSystem) StopHeartbeats() {
	if sys.heartbeatCancel != nil {
		sys.heartbeatCancel()
		sys.heartbeatCancel = nil
	}
}

// doHeartbeatCycle implements spec.md §4.4: read back every actor's slot
// from the previous cycle, increment the cycle, ping every actor, then
// report the previous cycle's results.
func (sys *ActorSystem) doHeartbeatCycle() {
	sys.mu.Lock()
	entries := append([]*ActorEntry(nil), sys.entries...)
	sys.mu.Unlock()

	// Slots are read before the new pings go out, so a fast actor's answer
	// to this cycle's ping cannot overwrite its answer to the previous one
	// before it is checked.
	lastCycles := make([]uint64, len(entries))
	lastNss := make([]time.Duration, len(entries))
	for i, e := range entries {
		lastCycles[i], lastNss[i] = e.slot.Load()
	}

	prevCycle := sys.cycle
	sys.cycle++
	cycle := sys.cycle
	now := time.Now()

	for _, e := range entries {
		select {
		case <-e.doneCh:
			continue // actor already stopped
		default:
		}
		err := e.Handle.TrySend(PingMsg{Cycle: cycle, SentAt: now, Slot: e.slot})
		if err != nil {
			sys.logger.Debug("ping try-send failed", zap.String("actor_id", e.ID), zap.Error(err))
		}
	}

	if prevCycle == 0 {
		return // nothing to read back on the very first cycle
	}
	for i, e := range entries {
		lastCycle, lastNs := lastCycles[i], lastNss[i]
		responded := lastCycle == prevCycle
		if responded {
			sys.metrics.latency.WithLabelValues(e.ID).Observe(time.Duration(lastNs).Seconds())
			e.stats.Observe(time.Duration(lastNs))
		} else {
			sys.metrics.missed.WithLabelValues(e.ID).Inc()
		}
		min, max, avg, _ := e.stats.Snapshot()
		ev := HeartbeatEvent{ActorID: e.ID, Cycle: prevCycle, LastNs: time.Duration(lastNs), Responded: responded, Min: min, Max: max, Avg: avg}
		select {
		case sys.heartbeats <- ev:
		default:
			// UI not draining fast enough; drop rather than block the
			// heartbeat cycle.
		}
	}
}

// doTerminateAll broadcasts Terminate to every registered actor in
// registration order (the committed Open-Question resolution — see
// DESIGN.md) with a per-actor best-effort send, then awaits the join set up
// to ShutdownTimeout before aborting stragglers.
func (sys *ActorSystem) doTerminateAll() {
	sys.mu.Lock()
	entries := append([]*ActorEntry(nil), sys.entries...)
	sys.mu.Unlock()

	failed := 0
	for _, e := range entries {
		if err := e.Handle.SendTimeout(TerminateMsg{}, 200*time.Millisecond); err != nil {
			failed++
			sys.logger.Warn("terminate send failed", zap.String("actor_id", e.ID), zap.Error(err))
		}
	}
	if failed > 0 {
		sys.logger.Warn("terminate_all: some actors did not accept Terminate", zap.Int("failed", failed), zap.Int("total", len(entries)))
	}

	sys.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		for _, e := range entries {
			<-e.doneCh
		}
		close(done)
	}()

	select {
	case <-done:
		sys.logger.Info("all actors terminated gracefully")
	case <-time.After(sys.cfg.ShutdownTimeout):
		sys.logger.Warn("shutdown timeout exceeded, aborting remaining actors")
		for _, e := range entries {
			select {
			case <-e.doneCh:
			default:
				e.cancel()
			}
		}
	}
}

// Wait blocks until the ActorSystem's own command loop and every spawned
// actor task have exited.
func (sys *ActorSystem) Wait() {
	sys.wg.Wait()
}

// InstallSignalHandler is the optional process signal hook from spec.md
// §4.3/§6: translate SIGINT/SIGTERM into RequestTermination. Wiring of the
// actual os/signal channel lives in cmd/odind so this package stays
// independent of process lifecycle concerns; callers pass a channel that
// is closed (or sent on) when the signal arrives, since signal.Notify's own
// channel carries os.Signal values rather than struct{}.
func (sys *ActorSystem) InstallSignalHandler(sig <-chan struct{}) {
	go func() {
		<-sig
		sys.RequestTermination()
	}()
}
