package rtc

import "sync"

// An inbox is an unbounded FIFO queue feeding a connection's event loop.
// push never blocks, so it is safe to call from engine callbacks, including
// ones running on the JS event loop. pop blocks and is called by a single
// consumer.
type inbox struct {
	mu     sync.Mutex
	queue  []event
	notify chan struct{}
	closed bool
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (in *inbox) push(evt event) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.queue = append(in.queue, evt)
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest event. It returns false once the inbox
// is closed and drained.
func (in *inbox) pop() (event, bool) {
	for {
		in.mu.Lock()
		if len(in.queue) > 0 {
			evt := in.queue[0]
			in.queue = in.queue[1:]
			in.mu.Unlock()
			return evt, true
		}
		closed := in.closed
		in.mu.Unlock()

		if closed {
			return event{}, false
		}
		<-in.notify
	}
}

func (in *inbox) close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()

	select {
	case in.notify <- struct{}{}:
	default:
	}
}
