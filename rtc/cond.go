package rtc

import "sync"

// A Cond is a one-shot condition. It starts unset and can be signalled at
// most once. Waiters select on C, which is closed when the condition fires.
type Cond struct {
	C    chan struct{}
	once sync.Once
}

// NewCond creates a new, unset Cond.
func NewCond() *Cond {
	return &Cond{C: make(chan struct{})}
}

// Signal fires the condition. Calls after the first are no-ops.
func (c *Cond) Signal() {
	c.once.Do(func() {
		close(c.C)
	})
}

// Do runs f and then fires the condition. Only the first call runs f.
func (c *Cond) Do(f func()) {
	c.once.Do(func() {
		f()
		close(c.C)
	})
}

// Wait blocks until the condition fires.
func (c *Cond) Wait() {
	<-c.C
}

// Fired reports whether the condition has fired.
func (c *Cond) Fired() bool {
	select {
	case <-c.C:
		return true
	default:
		return false
	}
}
