package actor

import (
	"context"
	"time"
)

// ActorHandle is the cheap, cloneable value external parties (and other
// actors) use to address one actor. Equality is by ID; two handles with the
// same ID feed the same mailbox. The zero value is not usable — obtain a
// handle via PreActorHandle.Handle or ActorSystem.Spawn.
type ActorHandle struct {
	id   string
	sys  *ActorSystem
	send chan Message
}

// ID returns the actor's stable identity.
func (h *ActorHandle) ID() string { return h.id }

// System returns the ActorSystem this handle's actor is registered with.
func (h *ActorHandle) System() *ActorSystem { return h.sys }

// Send is an await-send: it suspends the caller until the message is
// accepted into the mailbox, the mailbox is closed, or ctx is cancelled.
// A closed mailbox (the actor task has exited) yields ErrReceiverClosed.
func (h *ActorHandle) Send(ctx context.Context, msg Message) error {
	var done <-chan struct{}
	if entry := h.sys.lookup(h.id); entry != nil {
		done = entry.doneCh
	}
	select {
	case <-done:
		return ErrReceiverClosed
	default:
	}
	select {
	case h.send <- msg:
		return nil
	case <-done:
		return ErrReceiverClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MoveSend is identical to Send. The Rust source distinguishes a "move"
// variant that consumes the handle for ergonomics inside captured closures;
// Go closures already capture by reference/value as written, and the Go
// garbage collector makes handle ownership moot, so there is nothing to
// additionally enforce here — this method exists only so ported call sites
// that say "move-send" have an obvious one-to-one home.
func (h *ActorHandle) MoveSend(ctx context.Context, msg Message) error {
	return h.Send(ctx, msg)
}

// SendTimeout is an await-send bounded by d; expiry returns *TimeoutError
// without retracting the message if it happened to be accepted in the same
// instant the timer fired. A closed mailbox yields ErrReceiverClosed.
func (h *ActorHandle) SendTimeout(msg Message, d time.Duration) error {
	var done <-chan struct{}
	if entry := h.sys.lookup(h.id); entry != nil {
		done = entry.doneCh
	}
	select {
	case <-done:
		return ErrReceiverClosed
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case h.send <- msg:
		return nil
	case <-done:
		return ErrReceiverClosed
	case <-timer.C:
		return &TimeoutError{Duration: d}
	}
}

// TrySend is non-blocking: it fails immediately with ErrReceiverFull if the
// mailbox has no free capacity, or ErrReceiverClosed if the actor has
// already exited.
func (h *ActorHandle) TrySend(msg Message) error {
	select {
	case h.send <- msg:
		return nil
	default:
		if h.isClosed() {
			return ErrReceiverClosed
		}
		return ErrReceiverFull
	}
}

// isClosed is a best-effort probe; Go channels don't expose "closed" state
// directly, so actors close a sibling doneCh on exit that handles consult.
func (h *ActorHandle) isClosed() bool {
	entry := h.sys.lookup(h.id)
	if entry == nil {
		return true
	}
	select {
	case <-entry.doneCh:
		return true
	default:
		return false
	}
}

// RetrySend schedules periodic TrySend attempts at a fixed delay, up to
// maxAttempts, via the ActorSystem's job scheduler. It succeeds as soon as
// the retry job is scheduled, not when (or if) the message is actually
// delivered — matching spec's "succeeds if the retry is scheduled, not if
// delivered".
func (h *ActorHandle) RetrySend(msg Message, delay time.Duration, maxAttempts int) error {
	attempts := 0
	return h.sys.scheduler.Repeat(delay, func() bool {
		attempts++
		err := h.TrySend(msg)
		if err == nil {
			return false // delivered, stop retrying
		}
		if attempts >= maxAttempts {
			return false // give up
		}
		return true
	})
}

// Exec is fire-and-forget: the closure runs on the target actor's own
// goroutine via an ExecMsg await-send.
func (h *ActorHandle) Exec(ctx context.Context, fn func()) error {
	return h.Send(ctx, ExecMsg{Fn: fn})
}

// RequestTermination asks the owning ActorSystem to begin a system-wide
// graceful shutdown.
func (h *ActorHandle) RequestTermination() {
	h.sys.RequestTermination()
}

// StartOneshotTimer spawns a task that sleeps delay then try-sends
// TimerMsg{ID: id} to this actor. The returned CancelFunc stops the timer
// task; it does not retract an already-sent TimerMsg.
func (h *ActorHandle) StartOneshotTimer(id string, delay time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			_ = h.TrySend(TimerMsg{ID: id})
		case <-ctx.Done():
		}
	}()
	return cancel
}

// StartRepeatTimer spawns a task that, while this actor's mailbox is not
// closed, optionally fires immediately then alternates tick-and-send at
// interval. The returned CancelFunc stops the timer task.
func (h *ActorHandle) StartRepeatTimer(id string, interval time.Duration, fireImmediately bool) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if fireImmediately {
			if h.isClosed() {
				return
			}
			_ = h.TrySend(TimerMsg{ID: id})
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if h.isClosed() {
					return
				}
				_ = h.TrySend(TimerMsg{ID: id})
			}
		}
	}()
	return cancel
}
