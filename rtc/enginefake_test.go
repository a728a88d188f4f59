package rtc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rtcbridge/rtcbridge/internal/engine"
	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// fakeEngine scripts the backend side of the adapter contract so tests can
// drive the state machines without a real transport. Cross-wired pairs
// deliver channels and messages to each other the way two engines on one
// network would.
type fakeEngine struct {
	mu sync.Mutex

	offerSeq   int
	answerSeq  int
	localDesc  engine.Description
	remoteDesc engine.Description
	applied    []engine.Candidate
	channels   []*fakeChannel
	closed     bool

	peer *fakeEngine

	createOfferErr  error
	setRemoteErr    error
	addCandidateErr error

	onSignaling func(string)
	onICEState  func(string)
	onConnState func(string)
	onCandidate func(engine.Candidate, bool)
	onChannel   func(engine.Channel)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func newFakeEnginePair() (*fakeEngine, *fakeEngine) {
	a, b := newFakeEngine(), newFakeEngine()
	a.peer, b.peer = b, a
	return a, b
}

// installFakeEngines makes New hand out the given engines in order.
func installFakeEngines(t *testing.T, engines ...*fakeEngine) {
	t.Helper()
	old := newEngine
	var next int
	newEngine = func(cfg engine.Config, lg zerolog.Logger) (engine.Conn, error) {
		if next >= len(engines) {
			return nil, fmt.Errorf("no fake engine left for connection %d", next)
		}
		eng := engines[next]
		next++
		return eng, nil
	}
	t.Cleanup(func() { newEngine = old })
}

func (fe *fakeEngine) CreateOffer(ctx context.Context) (engine.Description, error) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	if fe.createOfferErr != nil {
		return engine.Description{}, fe.createOfferErr
	}
	fe.offerSeq++
	return engine.Description{Kind: engine.KindOffer, SDP: fmt.Sprintf("v=0 offer %d", fe.offerSeq)}, nil
}

func (fe *fakeEngine) CreateAnswer(ctx context.Context) (engine.Description, error) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.answerSeq++
	return engine.Description{Kind: engine.KindAnswer, SDP: fmt.Sprintf("v=0 answer %d", fe.answerSeq)}, nil
}

func (fe *fakeEngine) SetLocalDescription(ctx context.Context, desc engine.Description) error {
	fe.mu.Lock()
	fe.localDesc = desc
	fe.mu.Unlock()

	switch desc.Kind {
	case engine.KindOffer:
		fe.emitSignaling("have-local-offer")
	case engine.KindAnswer, engine.KindRollback:
		fe.emitSignaling("stable")
	case engine.KindPranswer:
		fe.emitSignaling("have-local-pranswer")
	}
	return nil
}

func (fe *fakeEngine) SetRemoteDescription(ctx context.Context, desc engine.Description) error {
	fe.mu.Lock()
	if fe.setRemoteErr != nil {
		err := fe.setRemoteErr
		fe.mu.Unlock()
		return err
	}
	fe.remoteDesc = desc
	fe.mu.Unlock()

	switch desc.Kind {
	case engine.KindOffer:
		fe.emitSignaling("have-remote-offer")
	case engine.KindAnswer, engine.KindRollback:
		fe.emitSignaling("stable")
	case engine.KindPranswer:
		fe.emitSignaling("have-remote-pranswer")
	}
	return nil
}

func (fe *fakeEngine) AddCandidate(cand engine.Candidate) error {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	if fe.addCandidateErr != nil {
		return fe.addCandidateErr
	}
	fe.applied = append(fe.applied, cand)
	return nil
}

func (fe *fakeEngine) appliedCandidates() []string {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	var out []string
	for _, cand := range fe.applied {
		out = append(out, cand.Candidate)
	}
	return out
}

func (fe *fakeEngine) CreateChannel(label string, opts engine.ChannelOptions) (engine.Channel, error) {
	ch := newFakeChannel(label, opts)

	fe.mu.Lock()
	fe.channels = append(fe.channels, ch)
	peer := fe.peer
	fe.mu.Unlock()

	if peer != nil {
		remote := newFakeChannel(label, opts)
		ch.peer, remote.peer = remote, ch
		peer.mu.Lock()
		peer.channels = append(peer.channels, remote)
		announce := peer.onChannel
		peer.mu.Unlock()
		if announce != nil {
			announce(remote)
		}
	}
	return ch, nil
}

func (fe *fakeEngine) Stats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"conn.type":              "peer-connection",
		"conn.dataChannelsOpened": float64(1),
		"pair-1.type":            "candidate-pair",
		"pair-1.state":           "succeeded",
	}, nil
}

func (fe *fakeEngine) Close() error {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.closed = true
	return nil
}

func (fe *fakeEngine) OnSignalingStateChange(f func(string)) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.onSignaling = f
}

func (fe *fakeEngine) OnICEConnectionStateChange(f func(string)) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.onICEState = f
}

func (fe *fakeEngine) OnConnectionStateChange(f func(string)) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.onConnState = f
}

func (fe *fakeEngine) OnCandidate(f func(engine.Candidate, bool)) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.onCandidate = f
}

func (fe *fakeEngine) OnChannel(f func(engine.Channel)) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.onChannel = f
}

func (fe *fakeEngine) emitSignaling(state string) {
	fe.mu.Lock()
	f := fe.onSignaling
	fe.mu.Unlock()
	if f != nil {
		f(state)
	}
}

func (fe *fakeEngine) emitICEState(state string) {
	fe.mu.Lock()
	f := fe.onICEState
	fe.mu.Unlock()
	if f != nil {
		f(state)
	}
}

func (fe *fakeEngine) emitConnState(state string) {
	fe.mu.Lock()
	f := fe.onConnState
	fe.mu.Unlock()
	if f != nil {
		f(state)
	}
}

func (fe *fakeEngine) emitCandidate(cand engine.Candidate, done bool) {
	fe.mu.Lock()
	f := fe.onCandidate
	fe.mu.Unlock()
	if f != nil {
		f(cand, done)
	}
}

type sentPayload struct {
	data     []byte
	isString bool
}

type fakeChannel struct {
	mu sync.Mutex

	label        string
	opts         engine.ChannelOptions
	id           uint16
	idSet        bool
	readyState   string
	buffered     uint64
	lowThreshold uint64
	sent         []sentPayload
	closed       bool

	peer *fakeChannel

	onOpen    func()
	onClose   func()
	onMessage func([]byte, bool)
	onLow     func()
	onError   func(error)
}

func newFakeChannel(label string, opts engine.ChannelOptions) *fakeChannel {
	return &fakeChannel{label: label, opts: opts, readyState: "connecting"}
}

func (ch *fakeChannel) Label() string {
	return ch.label
}

func (ch *fakeChannel) ID() (uint16, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.id, ch.idSet
}

func (ch *fakeChannel) ReadyState() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.readyState
}

func (ch *fakeChannel) Ordered() bool {
	if ch.opts.Ordered != nil {
		return *ch.opts.Ordered
	}
	return true
}

func (ch *fakeChannel) MaxRetransmits() (uint16, bool) {
	if ch.opts.MaxRetransmits != nil {
		return *ch.opts.MaxRetransmits, true
	}
	return 0, false
}

func (ch *fakeChannel) MaxPacketLifeTime() (uint16, bool) {
	if ch.opts.MaxPacketLifeTime != nil {
		return *ch.opts.MaxPacketLifeTime, true
	}
	return 0, false
}

func (ch *fakeChannel) Send(data []byte) error {
	return ch.send(append([]byte(nil), data...), false)
}

func (ch *fakeChannel) SendText(text string) error {
	return ch.send([]byte(text), true)
}

func (ch *fakeChannel) send(data []byte, isString bool) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return &rtcerr.ChannelClosedError{Label: ch.label}
	}
	ch.sent = append(ch.sent, sentPayload{data: data, isString: isString})
	peer := ch.peer
	ch.mu.Unlock()

	if peer != nil {
		peer.deliver(data, isString)
	}
	return nil
}

func (ch *fakeChannel) deliver(data []byte, isString bool) {
	ch.mu.Lock()
	f := ch.onMessage
	closed := ch.closed
	ch.mu.Unlock()
	if closed || f == nil {
		return
	}
	f(data, isString)
}

func (ch *fakeChannel) BufferedAmount() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.buffered
}

func (ch *fakeChannel) setBuffered(n uint64) {
	ch.mu.Lock()
	ch.buffered = n
	ch.mu.Unlock()
}

func (ch *fakeChannel) SetBufferedAmountLowThreshold(n uint64) {
	ch.mu.Lock()
	ch.lowThreshold = n
	ch.mu.Unlock()
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.readyState = "closed"
	onClose := ch.onClose
	peer := ch.peer
	ch.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	if peer != nil {
		_ = peer.Close()
	}
	return nil
}

func (ch *fakeChannel) OnOpen(f func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onOpen = f
}

func (ch *fakeChannel) OnClose(f func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onClose = f
}

func (ch *fakeChannel) OnMessage(f func([]byte, bool)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onMessage = f
}

func (ch *fakeChannel) OnBufferedAmountLow(f func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onLow = f
}

func (ch *fakeChannel) OnError(f func(error)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onError = f
}

func (ch *fakeChannel) emitOpen() {
	ch.mu.Lock()
	ch.readyState = "open"
	ch.id, ch.idSet = 1, true
	f := ch.onOpen
	ch.mu.Unlock()
	if f != nil {
		f()
	}
}

func (ch *fakeChannel) emitLow() {
	ch.mu.Lock()
	f := ch.onLow
	ch.mu.Unlock()
	if f != nil {
		f()
	}
}

func waitFor(t *testing.T, c <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// negotiate drives a full offer/answer exchange between two facades backed
// by cross-wired fakes.
func negotiate(t *testing.T, a, b *PeerConnection) {
	t.Helper()
	ctx := context.Background()

	offer, err := a.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := a.SetLocalDescription(ctx, offer); err != nil {
		t.Fatalf("set local offer: %v", err)
	}
	if err := b.SetRemoteDescription(ctx, offer); err != nil {
		t.Fatalf("set remote offer: %v", err)
	}
	answer, err := b.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("create answer: %v", err)
	}
	if err := b.SetLocalDescription(ctx, answer); err != nil {
		t.Fatalf("set local answer: %v", err)
	}
	if err := a.SetRemoteDescription(ctx, answer); err != nil {
		t.Fatalf("set remote answer: %v", err)
	}
}

// connectedPair builds two connected facades with one open channel between
// them, returning both ends of the channel.
func connectedPair(t *testing.T, cfg Config) (*PeerConnection, *DataChannel, *PeerConnection, *DataChannel) {
	t.Helper()

	feA, feB := newFakeEnginePair()
	installFakeEngines(t, feA, feB)

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	remoteReady := make(chan *DataChannel, 1)
	b.OnDataChannel(func(dc *DataChannel) {
		remoteReady <- dc
	})

	negotiate(t, a, b)

	dcA, err := a.CreateDataChannel("data", nil)
	if err != nil {
		t.Fatalf("create data channel: %v", err)
	}

	var dcB *DataChannel
	select {
	case dcB = <-remoteReady:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote channel")
	}

	openA := make(chan struct{})
	openB := make(chan struct{})
	dcA.OnOpen(func() { close(openA) })
	dcB.OnOpen(func() { close(openB) })

	feA.emitConnState("connecting")
	feA.emitConnState("connected")
	feB.emitConnState("connecting")
	feB.emitConnState("connected")
	feA.channelByLabel("data").emitOpen()
	feB.channelByLabel("data").emitOpen()

	waitFor(t, openA, "local channel open")
	waitFor(t, openB, "remote channel open")
	return a, dcA, b, dcB
}

func (fe *fakeEngine) channelByLabel(label string) *fakeChannel {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	for _, ch := range fe.channels {
		if ch.label == label {
			return ch
		}
	}
	return nil
}
