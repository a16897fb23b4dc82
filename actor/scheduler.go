package actor

import (
	"sync"
	"time"

	"github.com/alitto/pond/v2"
)

// Scheduler is the ActorSystem's shared job scheduler: delayed and
// repeating in-process jobs. Delayed jobs (After) run on a bounded worker
// pool; each repeating job (Repeat) runs on its own goroutine. Grounded
// on amp-labs-amp-common's bgworker package, the only pack repo depending on
// alitto/pond/v2.
type Scheduler struct {
	pool pond.Pool

	mu      sync.Mutex
	cancels []func()
	stopped bool
}

// NewScheduler builds a scheduler with workers background-job slots.
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{pool: pond.NewPool(workers)}
}

// After schedules fn to run once after delay, on the worker pool.
func (s *Scheduler) After(delay time.Duration, fn func()) {
	t := time.AfterFunc(delay, func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		_ = s.pool.Go(fn)
	})
	s.trackCancel(func() { t.Stop() })
}

// Repeat schedules fn to run every delay on a dedicated goroutine (not the
// worker pool) until fn returns false or the scheduler is stopped. Used by ActorHandle.RetrySend
// for bounded-attempt retry delivery, and available for any other
// in-process periodic job.
func (s *Scheduler) Repeat(delay time.Duration, fn func() bool) error {
	ticker := time.NewTicker(delay)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				stopped := s.stopped
				s.mu.Unlock()
				if stopped {
					return
				}
				// Run inline (not on the pool) so we can observe fn's
				// continue/stop decision before the next tick. fn is
				// expected to be a quick try-send, matching the timer
				// tasks' own tolerance for try-send-only operations
				// (spec.md §4.5).
				if !fn() {
					return
				}
			}
		}
	}()
	s.trackCancel(func() { close(done) })
	return nil
}

func (s *Scheduler) trackCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		cancel()
		return
	}
	s.cancels = append(s.cancels, cancel)
}

// Stop cancels all scheduled jobs and stops accepting new work, waiting for
// in-flight worker-pool tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.pool.StopAndWait()
}
