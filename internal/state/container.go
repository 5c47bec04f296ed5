package state

import (
	"fmt"
	"log/slog"

	"github.com/roach88/statewire/internal/metrics"
)

// container is the subscribable core embedded by every state. It owns the
// cached value, the ordered subscriber list and the queue of pending one-shot
// reads. Concrete states plug their lifecycle in through the hooks.
type container[T, E any] struct {
	kind string
	opts options

	value    Result[T, E]
	hasValue bool

	subs   []*Callback[T, E]
	subSet map[*Callback[T, E]]struct{}

	pending []func(Result[T, E])

	// delivering is set while updateSubscribers runs. Notifications raised
	// by a subscriber meanwhile wait in queued.
	delivering bool
	queued     []notification[T, E]

	// onFirst runs when the subscriber count goes from 0 to 1.
	onFirst func()
	// onLast runs when the subscriber count goes from 1 to 0.
	onLast func()
	// request runs when a subscriber asks for the current value but none is
	// cached. nil means the subscriber waits for the next notification.
	request func(cb *Callback[T, E])
	// stale reports whether the cached value may no longer be handed to a
	// new subscriber. A stale value is dropped on subscribe. nil means never.
	stale func() bool
}

type notification[T, E any] struct {
	value Result[T, E]
	subs  []*Callback[T, E]
}

func (c *container[T, E]) init(kind string, opts []Option) {
	c.kind = kind
	c.opts = buildOptions(kind, opts)
	c.subSet = make(map[*Callback[T, E]]struct{})
}

func (c *container[T, E]) logger() *slog.Logger {
	return c.opts.log()
}

// Name identifies the state in logs.
func (c *container[T, E]) Name() string {
	return c.opts.name
}

// Subscribe registers cb. A callback already subscribed is left alone.
func (c *container[T, E]) Subscribe(cb *Callback[T, E], deliverCurrent bool) *Callback[T, E] {
	if cb == nil {
		return nil
	}
	if _, ok := c.subSet[cb]; ok {
		c.logger().Warn("callback already subscribed", "state", c.opts.name, "callback", fmt.Sprintf("%p", cb))
		return cb
	}

	if c.hasValue && c.stale != nil && c.stale() {
		c.hasValue = false
	}
	had := c.hasValue
	c.subs = append(c.subs, cb)
	c.subSet[cb] = struct{}{}
	metrics.Subscribers.WithLabelValues(c.kind).Inc()

	if len(c.subs) == 1 && c.onFirst != nil {
		c.onFirst()
	}

	if deliverCurrent {
		switch {
		case had:
			c.deliver(cb, c.value)
		case c.request != nil:
			c.request(cb)
		}
	}
	return cb
}

// Unsubscribe removes cb. Unknown callbacks are logged and ignored.
func (c *container[T, E]) Unsubscribe(cb *Callback[T, E]) *Callback[T, E] {
	if _, ok := c.subSet[cb]; !ok {
		c.logger().Warn("callback not subscribed", "state", c.opts.name, "callback", fmt.Sprintf("%p", cb))
		return cb
	}

	delete(c.subSet, cb)
	for i, s := range c.subs {
		if s == cb {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			break
		}
	}
	metrics.Subscribers.WithLabelValues(c.kind).Dec()

	if len(c.subs) == 0 && c.onLast != nil {
		c.onLast()
	}
	return cb
}

// InUse reports whether any subscriber is registered.
func (c *container[T, E]) InUse() bool {
	return len(c.subs) > 0
}

// Related returns the metadata attached with WithRelated.
func (c *container[T, E]) Related() (map[string]any, bool) {
	if c.opts.related == nil {
		return nil, false
	}
	return c.opts.related(), true
}

// publish caches v and notifies subscribers.
func (c *container[T, E]) publish(v Result[T, E]) {
	c.value = v
	c.hasValue = true
	c.updateSubscribers(v)
}

// updateSubscribers delivers v to every current subscriber in subscription
// order. Callbacks removed during delivery are skipped; callbacks added during
// delivery are not called. A notification raised from inside a callback is
// delivered after the current one has reached every subscriber.
func (c *container[T, E]) updateSubscribers(v Result[T, E]) {
	if len(c.subs) == 0 {
		return
	}
	n := notification[T, E]{value: v, subs: append([]*Callback[T, E](nil), c.subs...)}
	if c.delivering {
		c.queued = append(c.queued, n)
		return
	}

	c.delivering = true
	defer func() { c.delivering = false }()
	for {
		for _, cb := range n.subs {
			if _, ok := c.subSet[cb]; !ok {
				continue
			}
			c.deliver(cb, n.value)
		}
		if len(c.queued) == 0 {
			return
		}
		n = c.queued[0]
		c.queued = c.queued[1:]
	}
}

func (c *container[T, E]) deliver(cb *Callback[T, E], v Result[T, E]) {
	metrics.Notifications.WithLabelValues(c.kind).Inc()
	defer func() {
		if p := recover(); p != nil {
			metrics.SubscriberPanics.WithLabelValues(c.kind).Inc()
			c.logger().Error("subscriber panicked",
				"state", c.opts.name,
				"callback", fmt.Sprintf("%p", cb),
				"panic", p,
			)
		}
	}()
	cb.fn(v)
}

// enqueueRead parks a one-shot read until fulfill.
func (c *container[T, E]) enqueueRead(fn func(Result[T, E])) {
	c.pending = append(c.pending, fn)
}

// fulfill answers every parked read exactly once.
func (c *container[T, E]) fulfill(v Result[T, E]) {
	pending := c.pending
	c.pending = nil
	for _, fn := range pending {
		c.callRead(fn, v)
	}
}

func (c *container[T, E]) callRead(fn func(Result[T, E]), v Result[T, E]) {
	defer func() {
		if p := recover(); p != nil {
			c.logger().Error("read continuation panicked", "state", c.opts.name, "panic", p)
		}
	}()
	fn(v)
}

// guard runs fn and reports whether it panicked, logging the panic.
func (c *container[T, E]) guard(what string, fn func()) (panicked bool) {
	defer func() {
		if p := recover(); p != nil {
			panicked = true
			c.logger().Error(what+" panicked", "state", c.opts.name, "panic", p)
		}
	}()
	fn()
	return false
}
