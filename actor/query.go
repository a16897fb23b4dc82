package actor

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// Query bundles a question value and a one-shot reply. The answering actor
// calls Respond (or Discard) exactly once; a second call is an error.
//
// Go has no deterministic Drop, so a Query that is simply discarded by the
// answering actor without calling Respond/Discard would otherwise leave the
// caller's SendQuery awaiting forever. We close a per-query `done` signal
// from a runtime.SetFinalizer as a safety net so such a caller still
// unblocks with ErrSendersDropped — callers that can, should call Discard
// explicitly instead of relying on GC timing.
type Query[Q any, A any] struct {
	Question Q

	reply   chan A
	done    chan struct{}
	replied atomic.Bool
}

func newQuery[Q any, A any](question Q, reply chan A) *Query[Q, A] {
	q := &Query[Q, A]{Question: question, reply: reply, done: make(chan struct{})}
	runtime.SetFinalizer(q, finalizeQuery[Q, A])
	return q
}

func finalizeQuery[Q any, A any](q *Query[Q, A]) {
	if q.replied.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Respond answers the query. Returns an error if the query was already
// responded to (or discarded), or ErrReceiverClosed if the reply channel
// already holds an unread answer (possible only with a reused QueryBuilder
// channel). A caller that has already given up is not detected: the answer
// is buffered and Respond returns nil.
func (q *Query[Q, A]) Respond(answer A) error {
	if !q.replied.CompareAndSwap(false, true) {
		return fmt.Errorf("actor: query already responded to")
	}
	runtime.SetFinalizer(q, nil)
	select {
	case q.reply <- answer:
		return nil
	default:
		return ErrReceiverClosed
	}
}

// Discard explicitly abandons the query without an answer, unblocking the
// caller immediately with ErrSendersDropped instead of waiting for the GC
// finalizer. Prefer this over letting the Query fall out of scope.
func (q *Query[Q, A]) Discard() {
	if q.replied.CompareAndSwap(false, true) {
		runtime.SetFinalizer(q, nil)
		close(q.done)
	}
}

// QueryMsg is the message wrapper a target actor's Behavior type-switches
// on to receive a Query[Q,A]. Embedding *Query gives the handler direct
// access to Respond/Discard/Question.
type QueryMsg[Q any, A any] struct {
	*Query[Q, A]
}

func (QueryMsg[Q, A]) Kind() Kind { return KindUser }

// SendQuery constructs a Query carrying question, await-sends it to target,
// and awaits the answer. Returns ErrSendersDropped if the Query is
// abandoned without a response, or ctx.Err() if ctx is cancelled first.
func SendQuery[Q any, A any](ctx context.Context, target *ActorHandle, question Q) (A, error) {
	var zero A
	reply := make(chan A, 1)
	q := newQuery[Q, A](question, reply)
	if err := target.Send(ctx, QueryMsg[Q, A]{q}); err != nil {
		return zero, err
	}
	select {
	case a := <-reply:
		return a, nil
	case <-q.done:
		return zero, ErrSendersDropped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// SendQueryTimeout is SendQuery bounded by an overall timeout.
func SendQueryTimeout[Q any, A any](target *ActorHandle, question Q, timeout time.Duration) (A, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a, err := SendQuery[Q, A](ctx, target, question)
	if err != nil && ctx.Err() != nil {
		var zero A
		return zero, &TimeoutError{Duration: timeout}
	}
	return a, err
}

// QueryBuilder owns a reusable, bounded-capacity-1 reply channel so the
// same builder can be used across sequential queries without reallocating a
// channel each time. Concurrent use of one QueryBuilder across overlapping
// queries is not supported (spec.md §4.7).
type QueryBuilder[A any] struct {
	reply chan A
}

// NewQueryBuilder allocates the reusable reply channel.
func NewQueryBuilder[A any]() *QueryBuilder[A] {
	return &QueryBuilder[A]{reply: make(chan A, 1)}
}

// Ask sends question to target using b's reusable reply channel and awaits
// the answer. It is a free function (not a method) because Go methods
// cannot introduce additional type parameters beyond the receiver's.
func Ask[Q any, A any](ctx context.Context, b *QueryBuilder[A], target *ActorHandle, question Q) (A, error) {
	var zero A
	q := newQuery[Q, A](question, b.reply)
	if err := target.Send(ctx, QueryMsg[Q, A]{q}); err != nil {
		return zero, err
	}
	select {
	case a := <-b.reply:
		return a, nil
	case <-q.done:
		return zero, ErrSendersDropped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
