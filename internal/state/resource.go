package state

import (
	"fmt"
	"time"

	"github.com/roach88/statewire/internal/loop"
	"github.com/roach88/statewire/internal/metrics"
)

// Connector binds a Resource to an external source. Every method is called
// on the scheduler thread; connectors doing I/O hand results back with
// Scheduler.Post and Resource.UpdateResource.
type Connector[T, E any] interface {
	// SingleGet performs one fetch and eventually calls UpdateResource.
	SingleGet(r *Resource[T, E])

	// SetupConnection starts live updates. It is called once per connection.
	SetupConnection(r *Resource[T, E])

	// TeardownConnection stops live updates.
	TeardownConnection(r *Resource[T, E])

	// WriteAction pushes v to the source. A nil future means the write
	// completed synchronously.
	WriteAction(r *Resource[T, E], v T) *Future[error]
}

// ConnectorFuncs adapts plain functions to Connector. Nil fields are no-ops,
// and a nil Write makes the resource read-only.
type ConnectorFuncs[T, E any] struct {
	Get      func(r *Resource[T, E])
	Setup    func(r *Resource[T, E])
	Teardown func(r *Resource[T, E])
	Write    func(r *Resource[T, E], v T) *Future[error]
}

func (c ConnectorFuncs[T, E]) SingleGet(r *Resource[T, E]) {
	if c.Get != nil {
		c.Get(r)
	}
}

func (c ConnectorFuncs[T, E]) SetupConnection(r *Resource[T, E]) {
	if c.Setup != nil {
		c.Setup(r)
	}
}

func (c ConnectorFuncs[T, E]) TeardownConnection(r *Resource[T, E]) {
	if c.Teardown != nil {
		c.Teardown(r)
	}
}

func (c ConnectorFuncs[T, E]) WriteAction(r *Resource[T, E], v T) *Future[error] {
	if c.Write == nil {
		return Resolved[error](errNotWritable())
	}
	return c.Write(r, v)
}

// Timing holds the resource delays. A zero field disables that delay.
type Timing struct {
	// Debounce delays connection setup after the first subscriber, and a
	// single fetch after a read.
	Debounce time.Duration
	// Timeout is how long a fetched value stays valid for reads while no
	// connection is live.
	Timeout time.Duration
	// Retention keeps the connection open after the last subscriber leaves.
	Retention time.Duration
	// WriteBounce coalesces writes issued within this window.
	WriteBounce time.Duration
}

// Resource is a state backed by an external source that is fetched on
// demand and connected while subscribed.
type Resource[T, E any] struct {
	container[T, E]

	sched  loop.Scheduler
	conn   Connector[T, E]
	timing Timing
	limit  func(T) T
	check  func(T) string
	equal  func(a, b T) bool

	validUntil time.Time
	fetching   bool
	connected  bool

	setupTimer     loop.Timer
	fetchTimer     loop.Timer
	retentionTimer loop.Timer

	writeTimer   loop.Timer
	writeValue   T
	writeWaiters []*Future[error]
}

// NewResource creates a resource driven by conn.
func NewResource[T, E any](sched loop.Scheduler, conn Connector[T, E], timing Timing, opts ...Option) *Resource[T, E] {
	r := &Resource[T, E]{sched: sched, conn: conn, timing: timing}
	r.init("resource", opts)
	w := newWriter[T, E](&r.opts)
	r.limit = w.limit
	r.check = w.check
	r.equal = w.equal
	r.onFirst = r.subscribed
	r.onLast = r.unsubscribed
	r.stale = func() bool {
		return !r.connected && !r.sched.Now().Before(r.validUntil)
	}
	return r
}

// Timing returns the configured delays.
func (r *Resource[T, E]) Timing() Timing {
	return r.timing
}

// Connected reports whether the connection is live.
func (r *Resource[T, E]) Connected() bool {
	return r.connected
}

// Fetching reports whether a single fetch is outstanding.
func (r *Resource[T, E]) Fetching() bool {
	return r.fetching
}

// ValidUntil returns the expiry of the last fetched value.
func (r *Resource[T, E]) ValidUntil() time.Time {
	return r.validUntil
}

// Scheduler returns the scheduler the resource is bound to.
func (r *Resource[T, E]) Scheduler() loop.Scheduler {
	return r.sched
}

func (r *Resource[T, E]) subscribed() {
	if r.retentionTimer != nil {
		r.retentionTimer.Stop()
		r.retentionTimer = nil
		return
	}
	if r.connected || r.setupTimer != nil {
		return
	}
	if r.timing.Debounce <= 0 {
		r.setup()
		return
	}
	r.setupTimer = r.sched.AfterFunc(r.timing.Debounce, func() {
		r.setupTimer = nil
		r.setup()
	})
}

func (r *Resource[T, E]) unsubscribed() {
	if r.setupTimer != nil {
		r.setupTimer.Stop()
		r.setupTimer = nil
		return
	}
	if !r.connected {
		return
	}
	if r.timing.Retention <= 0 {
		r.teardown()
		return
	}
	r.retentionTimer = r.sched.AfterFunc(r.timing.Retention, func() {
		r.retentionTimer = nil
		r.teardown()
	})
}

// Disconnect tears the connection down now, skipping a pending retention
// delay. Used at shutdown, after the last subscriber has left.
func (r *Resource[T, E]) Disconnect() {
	if r.setupTimer != nil {
		r.setupTimer.Stop()
		r.setupTimer = nil
	}
	if r.retentionTimer != nil {
		r.retentionTimer.Stop()
		r.retentionTimer = nil
	}
	if r.connected {
		r.teardown()
	}
}

func (r *Resource[T, E]) setup() {
	r.connected = true
	metrics.ResourceEvents.WithLabelValues("setup").Inc()
	r.logger().Debug("resource connecting", "state", r.opts.name)
	if r.guard("connection setup", func() { r.conn.SetupConnection(r) }) {
		r.UpdateResource(readErr[T, E](CodePanic, fmt.Sprintf("connection setup of %s panicked", r.opts.name)))
	}
}

func (r *Resource[T, E]) teardown() {
	r.connected = false
	metrics.ResourceEvents.WithLabelValues("teardown").Inc()
	r.logger().Debug("resource disconnecting", "state", r.opts.name)
	r.guard("connection teardown", func() { r.conn.TeardownConnection(r) })
}

// Then delivers the value once. A value is served from cache while the
// connection is live or the last fetch is still valid; otherwise the read
// parks and, when nobody is subscribed, a single fetch is issued.
func (r *Resource[T, E]) Then(fn func(Result[T, E])) {
	if r.hasValue && (r.connected || r.sched.Now().Before(r.validUntil)) {
		fn(r.value)
		return
	}
	r.enqueueRead(fn)
	if r.InUse() || r.fetching {
		return
	}
	r.fetching = true
	if r.timing.Debounce <= 0 {
		r.fetch()
		return
	}
	r.fetchTimer = r.sched.AfterFunc(r.timing.Debounce, r.fetch)
}

func (r *Resource[T, E]) fetch() {
	r.fetchTimer = nil
	metrics.ResourceEvents.WithLabelValues("fetch").Inc()
	if r.guard("single get", func() { r.conn.SingleGet(r) }) {
		r.UpdateResource(readErr[T, E](CodePanic, fmt.Sprintf("single get of %s panicked", r.opts.name)))
	}
}

// UpdateResource is called by connectors with a fresh result. Parked reads
// are answered; subscribers are notified only when the result changed.
func (r *Resource[T, E]) UpdateResource(v Result[T, E]) {
	r.validUntil = r.sched.Now().Add(r.timing.Timeout)
	r.fetching = false
	if r.fetchTimer != nil {
		r.fetchTimer.Stop()
		r.fetchTimer = nil
	}

	changed := !r.hasValue || !sameResult(r.value, v, r.equal)
	r.value = v
	r.hasValue = true

	r.fulfill(v)
	if changed {
		r.updateSubscribers(v)
	}
}

// UpdateOk is UpdateResource(Ok(v)).
func (r *Resource[T, E]) UpdateOk(v T) {
	r.UpdateResource(Ok[T, E](v))
}

// UpdateErr is UpdateResource(Err(e)).
func (r *Resource[T, E]) UpdateErr(e E) {
	r.UpdateResource(Err[T](e))
}

// Invalidate expires the cached value so the next unsubscribed read fetches.
func (r *Resource[T, E]) Invalidate() {
	r.validUntil = time.Time{}
}

// Limit clamps v to the accepted range.
func (r *Resource[T, E]) Limit(v T) T {
	if r.limit == nil {
		return v
	}
	return r.limit(v)
}

// Check returns "" when v is acceptable, otherwise a reason.
func (r *Resource[T, E]) Check(v T) string {
	if r.check == nil {
		return ""
	}
	return r.check(v)
}

// Write schedules v for the connector. Writes within the write-bounce window
// collapse into one action with the last value, and every returned future
// settles with that action's outcome.
func (r *Resource[T, E]) Write(v T) *Future[error] {
	v = r.Limit(v)
	if reason := r.Check(v); reason != "" {
		metrics.WriteRejections.WithLabelValues(CodeInvalid).Inc()
		return Resolved[error](&WriteError{Reason: reason, Code: CodeInvalid})
	}

	done := NewFuture[error]()
	r.writeValue = v
	r.writeWaiters = append(r.writeWaiters, done)

	if r.timing.WriteBounce <= 0 {
		r.flushWrite()
		return done
	}
	if r.writeTimer != nil {
		r.writeTimer.Stop()
	}
	r.writeTimer = r.sched.AfterFunc(r.timing.WriteBounce, r.flushWrite)
	return done
}

// WriteSync schedules v and reports only synchronous refusals.
func (r *Resource[T, E]) WriteSync(v T) error {
	if err, ok := r.Write(v).Value(); ok {
		return err
	}
	return nil
}

func (r *Resource[T, E]) flushWrite() {
	r.writeTimer = nil
	v := r.writeValue
	waiters := r.writeWaiters
	var zero T
	r.writeValue = zero
	r.writeWaiters = nil

	metrics.ResourceEvents.WithLabelValues("write_action").Inc()
	var action *Future[error]
	if r.guard("write action", func() { action = r.conn.WriteAction(r, v) }) {
		action = Resolved[error](&WriteError{Reason: fmt.Sprintf("write action of %s panicked", r.opts.name), Code: CodePanic})
	}
	if action == nil {
		action = Resolved[error](nil)
	}
	action.Then(func(err error) {
		for _, w := range waiters {
			w.Resolve(err)
		}
	})
}
