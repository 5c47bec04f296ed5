package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
)

// Loop is a single-goroutine run-to-completion executor.
//
// Thread-safety model:
//   - Post(), Do(), Close(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Defer(), AfterFunc(): must be called from tasks running on the loop
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger

	// goroutine id of the Run caller; 0 while not running
	owner atomic.Int64

	// deferred steps of the current task; only touched on the loop goroutine
	deferred []func()
	inTask   bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues fn as a task. Safe from any goroutine.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Enqueue(fn)
}

// Defer queues fn to run right after the current task.
//
// Called outside a task (before Run, or from a foreign goroutine) the work is
// posted as a regular task instead.
func (l *Loop) Defer(fn func()) {
	if !l.onLoop() {
		l.checkOwner("Defer")
		l.Post(fn)
		return
	}
	l.deferred = append(l.deferred, fn)
}

// AfterFunc runs fn on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	l.checkOwner("AfterFunc")

	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have won the race after the runtime timer fired.
			if t.done.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to finish.
//
// Must not be called from the loop goroutine itself (it would deadlock).
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.onLoop() {
		return fmt.Errorf("loop: Do called from the loop goroutine")
	}

	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return fmt.Errorf("loop: closed")
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled or Close is called and the queue
// has drained. Blocks the calling goroutine.
func (l *Loop) Run(ctx context.Context) error {
	if !l.owner.CompareAndSwap(0, goid.Get()) {
		return fmt.Errorf("loop: already running")
	}
	defer l.owner.Store(0)

	l.logger.Debug("loop starting")

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			l.runTask(task)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case _, ok := <-l.queue.Wait():
			if !ok && l.queue.Len() == 0 {
				l.logger.Debug("loop closed")
				return nil
			}
		}
	}
}

// Close stops accepting tasks. Run returns once queued tasks have run.
func (l *Loop) Close() {
	l.queue.Close()
}

func (l *Loop) runTask(task func()) {
	l.inTask = true
	l.safeRun(task)

	for len(l.deferred) > 0 {
		step := l.deferred[0]
		l.deferred[0] = nil
		l.deferred = l.deferred[1:]
		l.safeRun(step)
	}
	l.deferred = l.deferred[:0]
	l.inTask = false
}

// safeRun keeps one panicking task from killing the loop.
func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}

func (l *Loop) onLoop() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Get() && l.inTask
}

func (l *Loop) checkOwner(op string) {
	owner := l.owner.Load()
	if owner != 0 && owner != goid.Get() {
		l.logger.Warn("scheduler called off the loop goroutine", "op", op)
	}
}

type loopTimer struct {
	timer *time.Timer
	done  atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.done.CompareAndSwap(false, true)
}
