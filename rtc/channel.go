package rtc

import (
	"context"
	"errors"

	"github.com/rtcbridge/rtcbridge/internal/engine"
	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// A DataChannel is a bidirectional message pipe owned by a PeerConnection.
// Its lifecycle is strictly monotonic: connecting, open, closing, closed.
// A closed channel never reopens; create a new one instead.
type DataChannel struct {
	pc  *PeerConnection
	eng engine.Channel

	label     string
	highWater uint64
	lowWater  uint64

	// guarded by pc.mu
	state       DataChannelState
	onOpen      func()
	onMessage   func(Message)
	onClose     func()
	dispatching bool

	sendReady chan struct{}
	openCond  *Cond
	closeCond *Cond
	recvq     *recvQueue
}

// adoptChannel wraps an engine channel and wires its events into the
// connection inbox. Binding happens before the channel is announced to the
// caller so no early event can be lost.
func (pc *PeerConnection) adoptChannel(eng engine.Channel, opts ChannelOptions) *DataChannel {
	high, low := opts.watermarks()
	dc := &DataChannel{
		pc:        pc,
		eng:       eng,
		label:     eng.Label(),
		highWater: high,
		lowWater:  low,
		state:     DataChannelStateConnecting,
		sendReady: make(chan struct{}, 1),
		openCond:  NewCond(),
		closeCond: NewCond(),
		recvq:     newRecvQueue(pc.cfg.InboundQueueLimit),
	}

	eng.SetBufferedAmountLowThreshold(low)
	eng.OnBufferedAmountLow(func() {
		select {
		case dc.sendReady <- struct{}{}:
		default:
		}
	})
	eng.OnOpen(func() {
		pc.in.push(event{kind: evChannelOpen, dc: dc})
	})
	eng.OnClose(func() {
		pc.in.push(event{kind: evChannelClose, dc: dc})
	})
	eng.OnMessage(func(data []byte, isString bool) {
		pc.in.push(event{kind: evChannelMessage, dc: dc, data: data, isString: isString})
	})
	eng.OnError(func(err error) {
		pc.in.push(event{kind: evChannelError, dc: dc, err: err})
	})
	return dc
}

// Label returns the channel's label.
func (dc *DataChannel) Label() string {
	return dc.label
}

// ID returns the engine-assigned channel id. It reports false until the
// engine has negotiated one.
func (dc *DataChannel) ID() (uint16, bool) {
	return dc.eng.ID()
}

// Ordered reports whether the channel preserves delivery order.
func (dc *DataChannel) Ordered() bool {
	return dc.eng.Ordered()
}

// MaxRetransmits returns the retransmission bound, if one was configured.
func (dc *DataChannel) MaxRetransmits() (uint16, bool) {
	return dc.eng.MaxRetransmits()
}

// MaxPacketLifeTime returns the retransmission lifetime bound in
// milliseconds, if one was configured.
func (dc *DataChannel) MaxPacketLifeTime() (uint16, bool) {
	return dc.eng.MaxPacketLifeTime()
}

// ReadyState returns the channel's lifecycle state.
func (dc *DataChannel) ReadyState() DataChannelState {
	dc.pc.mu.Lock()
	defer dc.pc.mu.Unlock()
	return dc.state
}

// BufferedAmount returns the number of outbound bytes queued in the engine.
func (dc *DataChannel) BufferedAmount() uint64 {
	return dc.eng.BufferedAmount()
}

// Send transmits a binary payload. It fails with ChannelClosedError unless
// the channel is open, and fails fast with BackpressureError when the
// engine's outbound buffer is above the high-water mark; use SendContext to
// block instead.
func (dc *DataChannel) Send(data []byte) error {
	if err := dc.sendable(); err != nil {
		return err
	}
	return dc.eng.Send(data)
}

// SendText transmits a payload flagged as text. Errors as in Send.
func (dc *DataChannel) SendText(text string) error {
	if err := dc.sendable(); err != nil {
		return err
	}
	return dc.eng.SendText(text)
}

func (dc *DataChannel) sendable() error {
	dc.pc.mu.Lock()
	state := dc.state
	dc.pc.mu.Unlock()
	if state != DataChannelStateOpen {
		return &rtcerr.ChannelClosedError{Label: dc.label}
	}
	if buffered := dc.eng.BufferedAmount(); buffered >= dc.highWater {
		return &rtcerr.BackpressureError{
			Label:          dc.label,
			BufferedAmount: buffered,
			HighWaterMark:  dc.highWater,
		}
	}
	return nil
}

// SendContext transmits a binary payload, blocking while the engine's
// outbound buffer is above the high-water mark until it drains below the
// low-water mark, ctx is done, or the channel closes.
func (dc *DataChannel) SendContext(ctx context.Context, data []byte) error {
	for {
		dc.pc.mu.Lock()
		state := dc.state
		dc.pc.mu.Unlock()
		if state != DataChannelStateOpen {
			return &rtcerr.ChannelClosedError{Label: dc.label}
		}
		if dc.eng.BufferedAmount() < dc.highWater {
			return dc.eng.Send(data)
		}

		select {
		case <-dc.sendReady:
		case <-ctx.Done():
			return ctx.Err()
		case <-dc.closeCond.C:
			return &rtcerr.ChannelClosedError{Label: dc.label}
		}
	}
}

// Recv returns the next inbound message. It blocks while the channel is
// open and the queue is empty, drains messages already received after the
// channel closes, and then fails with ChannelClosedError.
func (dc *DataChannel) Recv(ctx context.Context) (Message, error) {
	msg, err := dc.recvq.pop(ctx)
	if err != nil {
		if errors.Is(err, errRecvClosed) {
			return Message{}, &rtcerr.ChannelClosedError{Label: dc.label}
		}
		return Message{}, err
	}
	return msg, nil
}

// OnOpen registers f to run once the channel reaches open.
func (dc *DataChannel) OnOpen(f func()) {
	dc.pc.mu.Lock()
	dc.onOpen = f
	dc.pc.mu.Unlock()
}

// OnClose registers f to run once the channel reaches closed.
func (dc *DataChannel) OnClose(f func()) {
	dc.pc.mu.Lock()
	dc.onClose = f
	dc.pc.mu.Unlock()
}

// OnMessage switches the channel from pull delivery to push delivery:
// messages already queued are replayed to f in order, then every subsequent
// message is delivered to f as it arrives. Mixing OnMessage with Recv is
// not supported.
func (dc *DataChannel) OnMessage(f func(Message)) {
	dc.pc.mu.Lock()
	dc.onMessage = f
	start := !dc.dispatching
	dc.dispatching = true
	dc.pc.mu.Unlock()

	if start {
		go dc.dispatch()
	}
}

func (dc *DataChannel) dispatch() {
	for {
		msg, err := dc.recvq.pop(context.Background())
		if err != nil {
			return
		}
		dc.pc.mu.Lock()
		f := dc.onMessage
		dc.pc.mu.Unlock()
		if f != nil {
			f(msg)
		}
	}
}

// Close tears the channel down. It is idempotent and never affects other
// channels on the same connection.
func (dc *DataChannel) Close() error {
	dc.pc.mu.Lock()
	if dc.state == DataChannelStateClosed {
		dc.pc.mu.Unlock()
		return nil
	}
	dc.state = DataChannelStateClosing
	dc.pc.mu.Unlock()

	err := dc.eng.Close()

	dc.pc.mu.Lock()
	onClose := dc.markClosed()
	dc.pc.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	return err
}

// markOpen applies the connecting to open transition. Caller holds pc.mu.
// The returned callback, if any, must be invoked outside the guard.
func (dc *DataChannel) markOpen() func() {
	if dc.state != DataChannelStateConnecting {
		return nil
	}
	dc.state = DataChannelStateOpen
	dc.openCond.Signal()
	return dc.onOpen
}

// markClosed applies the terminal transition. Caller holds pc.mu. The
// returned callback, if any, must be invoked outside the guard; exactly one
// caller ever receives it.
func (dc *DataChannel) markClosed() func() {
	if dc.state == DataChannelStateClosed {
		return nil
	}
	dc.state = DataChannelStateClosed
	dc.recvq.close()
	dc.closeCond.Signal()
	return dc.onClose
}

var errRecvClosed = errors.New("receive queue closed")

// recvQueue is a channel's inbound message buffer: ordered, optionally
// bounded, single producer (the connection's event loop), drained by Recv
// callers or the OnMessage dispatcher.
type recvQueue struct {
	guard
	queue  []Message
	limit  int
	closed bool
	notify chan struct{}
	space  chan struct{}
	done   chan struct{}
}

func newRecvQueue(limit int) *recvQueue {
	return &recvQueue{
		limit:  limit,
		notify: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends a message, blocking while a bounded queue is full. It never
// drops a message; after close it is a no-op.
func (q *recvQueue) push(msg Message) {
	for {
		q.Lock()
		if q.closed {
			q.Unlock()
			return
		}
		if q.limit <= 0 || len(q.queue) < q.limit {
			q.queue = append(q.queue, msg)
			q.Unlock()
			select {
			case q.notify <- struct{}{}:
			default:
			}
			return
		}
		q.Unlock()

		select {
		case <-q.space:
		case <-q.done:
		}
	}
}

func (q *recvQueue) pop(ctx context.Context) (Message, error) {
	for {
		q.Lock()
		if len(q.queue) > 0 {
			msg := q.queue[0]
			q.queue = q.queue[1:]
			q.Unlock()
			select {
			case q.space <- struct{}{}:
			default:
			}
			return msg, nil
		}
		closed := q.closed
		q.Unlock()

		if closed {
			return Message{}, errRecvClosed
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (q *recvQueue) close() {
	q.Lock()
	if q.closed {
		q.Unlock()
		return
	}
	q.closed = true
	q.Unlock()
	close(q.done)
}
