package state

// Proxy mirrors an upstream state through a read transform and, optionally,
// routes writes back through a write transform.
type Proxy[IN, OUT, E any] struct {
	container[OUT, E]

	upstream Readable[IN, E]
	target   Writable[IN, E]
	read     func(Result[IN, E]) Result[OUT, E]
	write    func(OUT) IN

	link *Callback[IN, E]
}

// NewProxy creates a read-only view of upstream.
func NewProxy[IN, OUT, E any](upstream Readable[IN, E], read func(Result[IN, E]) Result[OUT, E], opts ...Option) *Proxy[IN, OUT, E] {
	p := &Proxy[IN, OUT, E]{upstream: upstream, read: read}
	p.init("proxy", opts)
	p.onFirst = p.connect
	p.onLast = p.disconnect
	return p
}

// NewProxyWrite creates a writable view of upstream. Writes are mapped with
// write before reaching upstream.
func NewProxyWrite[IN, OUT, E any](upstream Writable[IN, E], read func(Result[IN, E]) Result[OUT, E], write func(OUT) IN, opts ...Option) *Proxy[IN, OUT, E] {
	p := NewProxy(Readable[IN, E](upstream), read, opts...)
	p.target = upstream
	p.write = write
	return p
}

// Widen views r as a state of any, so states of different value types can
// feed one derived state.
func Widen[T, E any](r Readable[T, E]) *Proxy[T, any, E] {
	return NewProxy(r, func(v Result[T, E]) Result[any, E] {
		return Map(v, func(x T) any { return x })
	}, WithName(r.Name()))
}

func (p *Proxy[IN, OUT, E]) connect() {
	link := NewCallback(func(r Result[IN, E]) {
		v := p.read(r)
		p.value = v
		p.hasValue = true
		p.fulfill(v)
		p.updateSubscribers(v)
	})
	p.link = link
	p.upstream.Subscribe(link, true)
}

func (p *Proxy[IN, OUT, E]) disconnect() {
	if p.link != nil {
		p.upstream.Unsubscribe(p.link)
		p.link = nil
	}
	p.hasValue = false
	var zero Result[OUT, E]
	p.value = zero
}

// Then delivers the transformed upstream value once.
func (p *Proxy[IN, OUT, E]) Then(fn func(Result[OUT, E])) {
	if p.link != nil && p.hasValue {
		fn(p.value)
		return
	}
	p.upstream.Then(func(r Result[IN, E]) { fn(p.read(r)) })
}

// Write maps v and writes it upstream.
func (p *Proxy[IN, OUT, E]) Write(v OUT) *Future[error] {
	if p.target == nil || p.write == nil {
		return Resolved[error](errNotWritable())
	}
	return p.target.Write(p.write(v))
}

// WriteSync maps v and writes it upstream.
func (p *Proxy[IN, OUT, E]) WriteSync(v OUT) error {
	if p.target == nil || p.write == nil {
		return errNotWritable()
	}
	return p.target.WriteSync(p.write(v))
}

// Limit applies upstream's limit in upstream terms and maps the result back.
func (p *Proxy[IN, OUT, E]) Limit(v OUT) OUT {
	if p.target == nil || p.write == nil {
		return v
	}
	out := p.read(Ok[IN, E](p.target.Limit(p.write(v))))
	if out.IsErr() {
		return v
	}
	return out.Value()
}

// Check applies upstream's check to the mapped value.
func (p *Proxy[IN, OUT, E]) Check(v OUT) string {
	if p.target == nil || p.write == nil {
		return ""
	}
	return p.target.Check(p.write(v))
}

// SetState points the proxy at a new upstream. A subscribed proxy
// reconnects and emits the new upstream's value.
func (p *Proxy[IN, OUT, E]) SetState(upstream Readable[IN, E]) {
	p.rewire(func() {
		p.upstream = upstream
		if w, ok := upstream.(Writable[IN, E]); ok && p.write != nil {
			p.target = w
		} else {
			p.target = nil
		}
	})
}

// SetTransform replaces the transforms. A nil write makes the proxy
// read-only.
func (p *Proxy[IN, OUT, E]) SetTransform(read func(Result[IN, E]) Result[OUT, E], write func(OUT) IN) {
	p.rewire(func() {
		p.read = read
		p.write = write
		if write == nil {
			p.target = nil
		} else if w, ok := p.upstream.(Writable[IN, E]); ok {
			p.target = w
		}
	})
}

func (p *Proxy[IN, OUT, E]) rewire(change func()) {
	if p.link == nil {
		change()
		return
	}
	p.disconnect()
	change()
	p.connect()
}
