package signal

import (
	"context"
	"sync"
)

type matchResult struct {
	data string
	err  error
}

type match struct {
	ctx     context.Context
	address string
	data    string
	sub     bool
	result  chan matchResult
}

// a match waiting for its counterpart; owned by the run loop while parked
type parked struct {
	data   string
	result chan matchResult
	done   chan struct{}
}

type expiry struct {
	address string
	p       *parked
	sub     bool
	err     error
}

// An Exchange pairs each message published to an address with a subscriber
// on that address, whichever side arrives first. All matching state lives on
// a single goroutine: the side that arrives first parks there until its
// counterpart shows up or its context ends, so a match never depends on
// another goroutine being scheduled.
type Exchange struct {
	matchc  chan match
	expiryc chan expiry

	pendingPubs map[string][]*parked
	pendingSubs map[string][]*parked

	once   sync.Once
	closer chan struct{}
}

// NewExchange creates an Exchange and starts its matching loop.
func NewExchange() *Exchange {
	x := &Exchange{
		matchc:  make(chan match),
		expiryc: make(chan expiry),

		pendingPubs: make(map[string][]*parked),
		pendingSubs: make(map[string][]*parked),

		closer: make(chan struct{}),
	}
	go x.run()
	return x
}

// Close stops the matching loop and releases every parked peer.
func (x *Exchange) Close() error {
	x.once.Do(func() {
		close(x.closer)
	})
	return nil
}

// Pub delivers data to a subscriber on address, blocking until one takes it
// or ctx is done.
func (x *Exchange) Pub(ctx context.Context, address, data string) error {
	c := make(chan matchResult, 1)
	select {
	case x.matchc <- match{ctx: ctx, address: address, data: data, result: c}:
	case <-x.closer:
		return context.Canceled
	}

	select {
	case r := <-c:
		return r.err
	case <-x.closer:
		return context.Canceled
	}
}

// Sub receives the next message published to address, blocking until one
// arrives or ctx is done.
func (x *Exchange) Sub(ctx context.Context, address string) (string, error) {
	c := make(chan matchResult, 1)
	select {
	case x.matchc <- match{ctx: ctx, address: address, sub: true, result: c}:
	case <-x.closer:
		return "", context.Canceled
	}

	select {
	case r := <-c:
		return r.data, r.err
	case <-x.closer:
		return "", context.Canceled
	}
}

func (x *Exchange) run() {
	for {
		select {
		case m := <-x.matchc:
			x.handle(m)
		case e := <-x.expiryc:
			x.expire(e)
		case <-x.closer:
			return
		}
	}
}

// handle resolves m against the oldest parked counterpart, or parks it.
func (x *Exchange) handle(m match) {
	counterpart := x.pendingPubs
	if !m.sub {
		counterpart = x.pendingSubs
	}
	if q := counterpart[m.address]; len(q) > 0 {
		p := q[0]
		if len(q) == 1 {
			delete(counterpart, m.address)
		} else {
			counterpart[m.address] = q[1:]
		}
		if m.sub {
			m.result <- matchResult{data: p.data}
			p.result <- matchResult{}
		} else {
			p.result <- matchResult{data: m.data}
			m.result <- matchResult{}
		}
		close(p.done)
		return
	}

	pending := x.pendingSubs
	if !m.sub {
		pending = x.pendingPubs
	}
	p := &parked{data: m.data, result: m.result, done: make(chan struct{})}
	pending[m.address] = append(pending[m.address], p)

	// report the context ending back to the loop; the loop decides whether
	// the entry is still parked
	go func() {
		select {
		case <-p.done:
		case <-x.closer:
		case <-m.ctx.Done():
			select {
			case x.expiryc <- expiry{address: m.address, p: p, sub: m.sub, err: m.ctx.Err()}:
			case <-p.done:
			case <-x.closer:
			}
		}
	}()
}

// expire removes a parked match whose context ended, unless a counterpart
// claimed it first.
func (x *Exchange) expire(e expiry) {
	pending := x.pendingSubs
	if !e.sub {
		pending = x.pendingPubs
	}
	q := pending[e.address]
	for i, p := range q {
		if p != e.p {
			continue
		}
		q = append(q[:i], q[i+1:]...)
		if len(q) == 0 {
			delete(pending, e.address)
		} else {
			pending[e.address] = q
		}
		p.result <- matchResult{err: e.err}
		close(p.done)
		return
	}
}
