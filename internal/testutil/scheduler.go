package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/statewire/internal/loop"
)

// Epoch is the virtual time a ManualScheduler starts at.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualScheduler is a deterministic loop.Scheduler over virtual time.
//
// Nothing runs on its own: deferred steps and posted tasks run on Flush, and
// timers fire only when Advance moves virtual time past their deadline. Timers
// with the same deadline fire in creation order.
//
// Post is safe from any goroutine; every other method must be called from the
// test goroutine.
type ManualScheduler struct {
	mu       sync.Mutex
	now      time.Time
	seq      int64
	deferred []func()
	tasks    []func()
	timers   []*manualTimer
}

// NewManualScheduler creates a scheduler whose clock reads Epoch.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{now: Epoch}
}

var _ loop.Scheduler = (*ManualScheduler)(nil)

// Now returns the current virtual time.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Elapsed returns the virtual time passed since Epoch.
func (s *ManualScheduler) Elapsed() time.Duration {
	return s.Now().Sub(Epoch)
}

// Defer queues fn for the next Flush.
func (s *ManualScheduler) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = append(s.deferred, fn)
}

// Post queues fn as a task for the next Flush.
func (s *ManualScheduler) Post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, fn)
	return true
}

// AfterFunc registers fn to run once virtual time reaches now+d.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{
		sched: s,
		when:  s.now.Add(d),
		seq:   s.seq,
		fn:    fn,
	}
	s.timers = append(s.timers, t)
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].when.Equal(s.timers[j].when) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].when.Before(s.timers[j].when)
	})
	return t
}

// Flush runs deferred steps and posted tasks until both queues are empty.
// Deferred steps always run before the next task.
func (s *ManualScheduler) Flush() {
	for {
		s.mu.Lock()
		var next func()
		switch {
		case len(s.deferred) > 0:
			next = s.deferred[0]
			s.deferred[0] = nil
			s.deferred = s.deferred[1:]
		case len(s.tasks) > 0:
			next = s.tasks[0]
			s.tasks[0] = nil
			s.tasks = s.tasks[1:]
		}
		s.mu.Unlock()

		if next == nil {
			return
		}
		next()
	}
}

// Advance moves virtual time forward by d, firing due timers in deadline order
// and flushing after each one.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.Flush()

	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.timers) == 0 || s.timers[0].when.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		t := s.timers[0]
		s.timers = s.timers[1:]
		t.fired = true
		s.now = t.when
		s.mu.Unlock()

		t.fn()
		s.Flush()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type manualTimer struct {
	sched *ManualScheduler
	when  time.Time
	seq   int64
	fn    func()
	fired bool
}

func (t *manualTimer) Stop() bool {
	s := t.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.fired {
		return false
	}
	for i, other := range s.timers {
		if other == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return true
		}
	}
	return false
}
