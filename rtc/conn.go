// Package rtc provides a cross-platform WebRTC transport: one API for peer
// connections and data channels, backed by the browser's RTC engine under
// js/wasm and by pion everywhere else. Signaling is up to the caller; SDP
// and candidate text pass through verbatim.
package rtc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rtcbridge/rtcbridge/internal/engine"
	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// newEngine is swapped by tests.
var newEngine = engine.New

type eventKind int

const (
	evSignalingState eventKind = iota + 1
	evICEConnectionState
	evConnectionState
	evCandidate
	evRemoteChannel
	evChannelOpen
	evChannelClose
	evChannelMessage
	evChannelError
)

// event is one translated engine callback, queued on the connection inbox.
type event struct {
	kind     eventKind
	state    string
	cand     engine.Candidate
	candDone bool
	dc       *DataChannel
	data     []byte
	isString bool
	err      error
}

// A PeerConnection is one RTC session. All state transitions are applied by
// a single event loop regardless of backend, so callbacks for one
// connection never interleave; separate connections proceed in parallel.
type PeerConnection struct {
	cfg Config
	log zerolog.Logger
	eng engine.Conn
	in  *inbox

	closeCond *Cond

	mu                   guard
	signalingState       SignalingState
	announcedSignaling   SignalingState
	iceConnectionState   ICEConnectionState
	connectionState      ConnectionState
	hasRemoteDescription bool
	draining             bool
	pendingCandidates    []ICECandidateInit
	everNegotiated       bool
	closed               bool
	failed               bool
	channels             []*DataChannel
	deferredOpens        []*DataChannel

	onSignalingStateChange     func(SignalingState)
	onICEConnectionStateChange func(ICEConnectionState)
	onConnectionStateChange    func(ConnectionState)
	onICECandidate             func(ICECandidateInit)
	onDataChannel              func(*DataChannel)
	onClose                    func()
}

// New validates cfg, constructs the backend engine, and starts the
// connection's event loop. Config problems fail fast with ConfigError
// before any engine is touched.
func New(cfg Config) (*PeerConnection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()

	eng, err := newEngine(cfg.engineConfig(), log)
	if err != nil {
		return nil, err
	}

	pc := &PeerConnection{
		cfg:                cfg,
		log:                log,
		eng:                eng,
		in:                 newInbox(),
		closeCond:          NewCond(),
		signalingState:     SignalingStateStable,
		announcedSignaling: SignalingStateStable,
		iceConnectionState: ICEConnectionStateNew,
		connectionState:    ConnectionStateNew,
	}
	pc.bindEngine()
	go pc.run()
	return pc, nil
}

// bindEngine registers this connection as the sole consumer of its engine's
// events. Engine callbacks only push onto the inbox and return.
func (pc *PeerConnection) bindEngine() {
	pc.eng.OnSignalingStateChange(func(state string) {
		pc.in.push(event{kind: evSignalingState, state: state})
	})
	pc.eng.OnICEConnectionStateChange(func(state string) {
		pc.in.push(event{kind: evICEConnectionState, state: state})
	})
	pc.eng.OnConnectionStateChange(func(state string) {
		pc.in.push(event{kind: evConnectionState, state: state})
	})
	pc.eng.OnCandidate(func(cand engine.Candidate, done bool) {
		pc.in.push(event{kind: evCandidate, cand: cand, candDone: done})
	})
	pc.eng.OnChannel(func(ch engine.Channel) {
		dc := pc.adoptChannel(ch, pc.cfg.ChannelDefaults)
		pc.in.push(event{kind: evRemoteChannel, dc: dc})
	})
}

func (pc *PeerConnection) run() {
	for {
		evt, ok := pc.in.pop()
		if !ok {
			return
		}
		pc.apply(evt)
	}
}

func (pc *PeerConnection) apply(evt event) {
	switch evt.kind {
	case evSignalingState:
		pc.applySignalingState(evt.state)
	case evICEConnectionState:
		pc.applyICEConnectionState(evt.state)
	case evConnectionState:
		pc.applyConnectionState(evt.state)
	case evCandidate:
		pc.applyCandidate(evt.cand, evt.candDone)
	case evRemoteChannel:
		pc.applyRemoteChannel(evt.dc)
	case evChannelOpen:
		pc.applyChannelOpen(evt.dc)
	case evChannelClose:
		pc.applyChannelClose(evt.dc)
	case evChannelMessage:
		pc.applyChannelMessage(evt.dc, Message{Data: evt.data, IsString: evt.isString})
	case evChannelError:
		pc.log.Warn().Str("label", evt.dc.label).Err(evt.err).Msg("data channel error")
	}
}

func (pc *PeerConnection) applySignalingState(raw string) {
	state := newSignalingState(raw)
	pc.mu.Lock()
	if state == SignalingState(0) || pc.closed || state == pc.announcedSignaling {
		pc.mu.Unlock()
		return
	}
	pc.announcedSignaling = state
	pc.signalingState = state
	handler := pc.onSignalingStateChange
	pc.mu.Unlock()

	pc.log.Debug().Stringer("state", state).Msg("signaling state changed")
	if handler != nil {
		handler(state)
	}
}

func (pc *PeerConnection) applyICEConnectionState(raw string) {
	state := newICEConnectionState(raw)
	pc.mu.Lock()
	if state == ICEConnectionState(0) || pc.closed ||
		state == pc.iceConnectionState || pc.iceConnectionState == ICEConnectionStateClosed {
		pc.mu.Unlock()
		return
	}
	pc.iceConnectionState = state
	handler := pc.onICEConnectionStateChange
	pc.mu.Unlock()

	pc.log.Debug().Stringer("state", state).Msg("ice connection state changed")
	if handler != nil {
		handler(state)
	}
}

func (pc *PeerConnection) applyConnectionState(raw string) {
	state := newConnectionState(raw)
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	next, ok := nextConnectionState(pc.connectionState, state)
	if !ok {
		pc.mu.Unlock()
		return
	}
	pc.connectionState = next
	if next == ConnectionStateFailed {
		pc.failed = true
	}
	handler := pc.onConnectionStateChange

	// Channel opens held back while the connection was still new are
	// released now, after the parent state itself becomes observable.
	var opens []func()
	if next == ConnectionStateConnecting || next == ConnectionStateConnected {
		for _, dc := range pc.deferredOpens {
			if f := dc.markOpen(); f != nil {
				opens = append(opens, f)
			}
		}
		pc.deferredOpens = nil
	}
	pc.mu.Unlock()

	pc.log.Debug().Stringer("state", next).Msg("connection state changed")
	if handler != nil {
		handler(next)
	}
	for _, f := range opens {
		f()
	}
}

func (pc *PeerConnection) applyCandidate(cand engine.Candidate, done bool) {
	if done {
		pc.log.Debug().Msg("candidate gathering complete")
		return
	}
	pc.mu.Lock()
	closed := pc.closed
	handler := pc.onICECandidate
	pc.mu.Unlock()
	if closed || handler == nil {
		return
	}
	handler(ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (pc *PeerConnection) applyRemoteChannel(dc *DataChannel) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		_ = dc.eng.Close()
		return
	}
	pc.channels = append(pc.channels, dc)
	handler := pc.onDataChannel
	pc.mu.Unlock()

	pc.log.Debug().Str("label", dc.label).Msg("remote data channel announced")
	if handler != nil {
		handler(dc)
	}
	// Some engines announce a channel that is already open and fire no
	// further open event for it.
	if dc.eng.ReadyState() == "open" {
		pc.in.push(event{kind: evChannelOpen, dc: dc})
	}
}

func (pc *PeerConnection) applyChannelOpen(dc *DataChannel) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	if pc.connectionState == ConnectionStateNew {
		pc.deferredOpens = append(pc.deferredOpens, dc)
		pc.mu.Unlock()
		return
	}
	f := dc.markOpen()
	pc.mu.Unlock()

	if f != nil {
		f()
	}
}

func (pc *PeerConnection) applyChannelClose(dc *DataChannel) {
	pc.mu.Lock()
	f := dc.markClosed()
	pc.mu.Unlock()

	if f != nil {
		f()
	}
}

func (pc *PeerConnection) applyChannelMessage(dc *DataChannel, msg Message) {
	pc.mu.Lock()
	state := dc.state
	pc.mu.Unlock()
	if state == DataChannelStateClosed {
		return
	}
	// push may block on a bounded queue until the caller drains; the guard
	// is not held so Close can still cut in and release it.
	dc.recvq.push(msg)
}

// commandable rejects operations on connections that are already closed or
// failed. Caller holds pc.mu.
func (pc *PeerConnection) commandable(op string) error {
	if pc.closed {
		return fmt.Errorf("%s: %w", op, rtcerr.ErrConnectionClosed)
	}
	if pc.failed {
		return &rtcerr.ConnectionFailedError{Err: fmt.Errorf("%s: connection has failed", op)}
	}
	return nil
}

// CreateOffer produces a local offer. Nothing is applied until the caller
// passes the description to SetLocalDescription.
func (pc *PeerConnection) CreateOffer(ctx context.Context) (SessionDescription, error) {
	pc.mu.Lock()
	err := pc.commandable("create offer")
	if err == nil {
		err = checkCreateOffer(pc.signalingState)
	}
	pc.mu.Unlock()
	if err != nil {
		return SessionDescription{}, err
	}

	desc, err := pc.eng.CreateOffer(ctx)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SDPType(desc.Kind), SDP: desc.SDP}, nil
}

// CreateAnswer produces an answer to the pending remote offer.
func (pc *PeerConnection) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	pc.mu.Lock()
	err := pc.commandable("create answer")
	if err == nil {
		err = checkCreateAnswer(pc.signalingState)
	}
	pc.mu.Unlock()
	if err != nil {
		return SessionDescription{}, err
	}

	desc, err := pc.eng.CreateAnswer(ctx)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SDPType(desc.Kind), SDP: desc.SDP}, nil
}

// SetLocalDescription applies a locally produced description. The
// transition is validated before the engine is touched, so misuse fails
// identically on every backend.
func (pc *PeerConnection) SetLocalDescription(ctx context.Context, desc SessionDescription) error {
	pc.mu.Lock()
	err := pc.commandable("set local description")
	var next SignalingState
	if err == nil {
		next, err = nextLocalState(pc.signalingState, desc.Type)
	}
	pc.mu.Unlock()
	if err != nil {
		return err
	}

	if err := pc.eng.SetLocalDescription(ctx, engineDescription(desc)); err != nil {
		return err
	}

	pc.mu.Lock()
	if !pc.closed {
		pc.signalingState = next
		if desc.Type == SDPTypeAnswer && next == SignalingStateStable {
			pc.everNegotiated = true
		}
	}
	pc.mu.Unlock()
	return nil
}

// SetRemoteDescription applies a description received from signaling and
// then drains any ICE candidates that were queued waiting for it, in
// receipt order.
func (pc *PeerConnection) SetRemoteDescription(ctx context.Context, desc SessionDescription) error {
	pc.mu.Lock()
	err := pc.commandable("set remote description")
	var next SignalingState
	if err == nil {
		next, err = nextRemoteState(pc.signalingState, desc.Type)
	}
	pc.mu.Unlock()
	if err != nil {
		return err
	}

	if err := pc.eng.SetRemoteDescription(ctx, engineDescription(desc)); err != nil {
		return err
	}

	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.signalingState = next
	if desc.Type == SDPTypeAnswer && next == SignalingStateStable {
		pc.everNegotiated = true
	}
	if desc.Type == SDPTypeRollback {
		// Rolling back a first-time offer leaves the connection with no
		// remote description, so candidates must queue again.
		if !pc.everNegotiated {
			pc.hasRemoteDescription = false
		}
		pc.mu.Unlock()
		return nil
	}
	pc.draining = true
	pc.mu.Unlock()

	pc.drainCandidates()
	return nil
}

// drainCandidates applies queued candidates one at a time. Candidates
// arriving mid-drain see the draining flag and join the tail of the queue,
// so nothing overtakes an earlier candidate.
func (pc *PeerConnection) drainCandidates() {
	for {
		pc.mu.Lock()
		if len(pc.pendingCandidates) == 0 {
			pc.hasRemoteDescription = true
			pc.draining = false
			pc.mu.Unlock()
			return
		}
		cand := pc.pendingCandidates[0]
		pc.pendingCandidates = pc.pendingCandidates[1:]
		pc.mu.Unlock()

		if err := pc.eng.AddCandidate(engineCandidate(cand)); err != nil {
			pc.log.Warn().Err(err).Msg("queued candidate rejected")
		}
	}
}

// AddICECandidate applies a candidate received from signaling. Before the
// remote description is set candidates are queued FIFO; after close they
// are silently ignored.
func (pc *PeerConnection) AddICECandidate(cand ICECandidateInit) error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	if pc.failed {
		pc.mu.Unlock()
		return &rtcerr.ConnectionFailedError{Err: fmt.Errorf("add ice candidate: connection has failed")}
	}
	if !pc.hasRemoteDescription || pc.draining {
		pc.pendingCandidates = append(pc.pendingCandidates, cand)
		pc.mu.Unlock()
		return nil
	}
	pc.mu.Unlock()

	return pc.eng.AddCandidate(engineCandidate(cand))
}

// CreateDataChannel opens a new channel on this connection. A nil opts uses
// the connection's channel defaults.
func (pc *PeerConnection) CreateDataChannel(label string, opts *ChannelOptions) (*DataChannel, error) {
	pc.mu.Lock()
	err := pc.commandable("create data channel")
	pc.mu.Unlock()
	if err != nil {
		return nil, err
	}

	eff := pc.cfg.ChannelDefaults
	if opts != nil {
		eff = *opts
		if eff.HighWaterMark == 0 {
			eff.HighWaterMark = pc.cfg.ChannelDefaults.HighWaterMark
		}
		if eff.LowWaterMark == 0 {
			eff.LowWaterMark = pc.cfg.ChannelDefaults.LowWaterMark
		}
	}
	if err := eff.validate(); err != nil {
		return nil, err
	}

	ch, err := pc.eng.CreateChannel(label, engine.ChannelOptions{
		Ordered:           eff.Ordered,
		MaxRetransmits:    eff.MaxRetransmits,
		MaxPacketLifeTime: eff.MaxPacketLifeTime,
		Negotiated:        eff.Negotiated,
		ID:                eff.ID,
	})
	if err != nil {
		return nil, err
	}

	dc := pc.adoptChannel(ch, eff)
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		_ = ch.Close()
		return nil, fmt.Errorf("create data channel: %w", rtcerr.ErrConnectionClosed)
	}
	pc.channels = append(pc.channels, dc)
	pc.mu.Unlock()

	return dc, nil
}

// Stats returns a point-in-time snapshot of engine statistics, keyed
// "<reportID>.<field>". The shape beyond the keying is backend-dependent.
func (pc *PeerConnection) Stats(ctx context.Context) (StatsSnapshot, error) {
	pc.mu.Lock()
	closed := pc.closed
	pc.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("stats: %w", rtcerr.ErrConnectionClosed)
	}

	stats, err := pc.eng.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return StatsSnapshot(stats), nil
}

// SignalingState returns the current signaling state.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signalingState
}

// ICEConnectionState returns the current ICE connection state.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceConnectionState
}

// ConnectionState returns the current aggregate connection state.
func (pc *PeerConnection) ConnectionState() ConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connectionState
}

// OnSignalingStateChange registers f for signaling state transitions.
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState)) {
	pc.mu.Lock()
	pc.onSignalingStateChange = f
	pc.mu.Unlock()
}

// OnICEConnectionStateChange registers f for ICE connection state
// transitions.
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ICEConnectionState)) {
	pc.mu.Lock()
	pc.onICEConnectionStateChange = f
	pc.mu.Unlock()
}

// OnConnectionStateChange registers f for aggregate state transitions. A
// terminal failed or closed state is delivered exactly once.
func (pc *PeerConnection) OnConnectionStateChange(f func(ConnectionState)) {
	pc.mu.Lock()
	pc.onConnectionStateChange = f
	pc.mu.Unlock()
}

// OnICECandidate registers f for locally gathered candidates, in emission
// order. The caller ferries them to the remote peer.
func (pc *PeerConnection) OnICECandidate(f func(ICECandidateInit)) {
	pc.mu.Lock()
	pc.onICECandidate = f
	pc.mu.Unlock()
}

// OnDataChannel registers f for channels initiated by the remote peer. It
// runs before any open or message callback for that channel, so handlers
// installed inside it do not miss events.
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel)) {
	pc.mu.Lock()
	pc.onDataChannel = f
	pc.mu.Unlock()
}

// OnClose registers f to run once after Close completes its cascade.
func (pc *PeerConnection) OnClose(f func()) {
	pc.mu.Lock()
	pc.onClose = f
	pc.mu.Unlock()
}

// Shareable reports whether this backend's connections may be used from
// multiple goroutines.
func (pc *PeerConnection) Shareable() bool {
	return shareable
}

// Share hands the connection to another goroutine. On single-context
// backends it fails with ThreadAffinityError at the point of transfer
// rather than at some later point of use.
func (pc *PeerConnection) Share() (*PeerConnection, error) {
	if !shareable {
		return nil, &rtcerr.ThreadAffinityError{Op: "share"}
	}
	return pc, nil
}

// Close tears down the connection and every channel it owns. No channel
// reports anything but closed once Close returns. Close is idempotent,
// produces no duplicate terminal events, and is safe to call from inside
// any callback.
func (pc *PeerConnection) Close() error {
	var err error
	pc.closeCond.Do(func() {
		pc.mu.Lock()
		pc.closed = true
		pc.signalingState = SignalingStateClosed
		wasTerminal := pc.connectionState.terminal()
		pc.connectionState = ConnectionStateClosed
		pc.iceConnectionState = ICEConnectionStateClosed
		pc.deferredOpens = nil
		pc.pendingCandidates = nil

		var fire []func()
		children := make([]engine.Channel, 0, len(pc.channels))
		for _, dc := range pc.channels {
			children = append(children, dc.eng)
			if f := dc.markClosed(); f != nil {
				fire = append(fire, f)
			}
		}
		if !wasTerminal {
			if handler := pc.onConnectionStateChange; handler != nil {
				fire = append(fire, func() { handler(ConnectionStateClosed) })
			}
		}
		if pc.onClose != nil {
			fire = append(fire, pc.onClose)
		}
		pc.mu.Unlock()

		for _, ch := range children {
			_ = ch.Close()
		}
		err = pc.eng.Close()
		pc.in.close()

		pc.log.Debug().Msg("connection closed")
		for _, f := range fire {
			f()
		}
	})
	return err
}

func engineDescription(desc SessionDescription) engine.Description {
	return engine.Description{Kind: string(desc.Type), SDP: desc.SDP}
}

func engineCandidate(cand ICECandidateInit) engine.Candidate {
	return engine.Candidate{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
}
