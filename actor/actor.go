package actor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// Behavior is the user-supplied per-actor message handler. Receive is
// invoked for every message the actor's mailbox yields, system and user
// variants alike; actors that don't want to special-case a system variant
// should fall through to DefaultReceive in their default switch arm,
// mirroring the codegen'd dispatch function spec.md's Design Notes call
// for.
type Behavior interface {
	Receive(ctx context.Context, self *ActorHandle, msg Message) ReceiveAction
}

// DefaultReceive implements spec.md §4.2's default system-message handling.
// User Behaviors should call this from the default arm of their own type
// switch for any system Kind they don't want to special-case.
func DefaultReceive(ctx context.Context, self *ActorHandle, msg Message) ReceiveAction {
	switch m := msg.(type) {
	case StartMsg:
		return Continue
	case PingMsg:
		m.Slot.store(m.Cycle, time.Since(m.SentAt))
		return Continue
	case TimerMsg:
		return Continue
	case ExecMsg:
		if m.Fn != nil {
			m.Fn()
		}
		return Continue
	case PauseMsg:
		return Continue
	case ResumeMsg:
		return Continue
	case TerminateMsg:
		return Stop
	default:
		return Continue
	}
}

// ActorBuilder is the first of the two-step construction spec.md mandates:
// NewActor/NewPreActor allocate identity and mailbox endpoints; passing the
// builder to ActorSystem.Spawn consumes the receiver and starts the task.
type ActorBuilder struct {
	id       string
	behavior Behavior
	handle   *ActorHandle
	recv     chan Message
}

// NewActor allocates a fresh mailbox of the given bound (<=0 uses the
// system default) and returns a builder plus the handle external callers
// can already start using.
func NewActor(sys *ActorSystem, id string, behavior Behavior, mailboxBound int) (*ActorBuilder, *ActorHandle) {
	if mailboxBound <= 0 {
		mailboxBound = sys.cfg.DefaultMailboxBound
	}
	if mailboxBound <= 0 {
		mailboxBound = defaultMailboxBound
	}
	ch := make(chan Message, mailboxBound)
	handle := &ActorHandle{id: id, sys: sys, send: ch}
	return &ActorBuilder{id: id, behavior: behavior, handle: handle, recv: ch}, handle
}

// NewPreActor builds an actor from a PreActorHandle created earlier,
// substituting its pre-allocated sender/receiver pair. This is the cyclic
// construction path: pre's Handle() was already usable by other actors
// before this call.
func NewPreActor(pre *PreActorHandle, behavior Behavior) *ActorBuilder {
	return &ActorBuilder{id: pre.id, behavior: behavior, handle: pre.Handle(), recv: pre.consume()}
}

// runActor is the per-actor task: the message loop described in spec.md
// §4.2. It recovers from panics in user code so that one actor crashing
// never takes down the rest of the system.
func runActor(ctx context.Context, sys *ActorSystem, entry *ActorEntry, b *ActorBuilder) {
	logger := sys.logger.With(zap.String("actor_id", b.id), zap.String("actor_type", typeNameOf(b.behavior)))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("actor panicked, terminating this actor only", zap.Any("panic", r))
		}
		close(entry.doneCh)
		sys.actorStopped(entry)
		logger.Debug("actor stopped")
	}()

	logger.Debug("actor starting")
	if dispatch(ctx, b.handle, b.behavior, StartMsg{}) == Stop {
		return
	}

	for {
		select {
		case msg, ok := <-b.recv:
			if !ok {
				return
			}
			switch dispatch(ctx, b.handle, b.behavior, msg) {
			case Stop:
				return
			case RequestTermination:
				sys.RequestTermination()
				if _, isTerm := msg.(TerminateMsg); isTerm {
					return
				}
			case Continue:
				// keep looping
			}
		case <-ctx.Done():
			return
		}
	}
}

func dispatch(ctx context.Context, self *ActorHandle, b Behavior, msg Message) ReceiveAction {
	return b.Receive(ctx, self, msg)
}

func typeNameOf(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}
