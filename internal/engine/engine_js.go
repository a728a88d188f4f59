//go:build js && wasm

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"syscall/js"

	"github.com/rs/zerolog"

	"github.com/rtcbridge/rtcbridge/rtcerr"
)

type M = map[string]interface{}
type S = []interface{}

// Shareable reports whether engine handles may cross goroutine boundaries.
// Browser handles are confined to the single JS execution context.
const Shareable = false

// New creates a peer connection backed by the browser's RTC engine.
func New(cfg Config, lg zerolog.Logger) (Conn, error) {
	ctor := js.Global().Get("RTCPeerConnection")
	if !ctor.Truthy() {
		return nil, &rtcerr.NegotiationError{Op: "create peer connection",
			Err: errors.New("RTCPeerConnection is not available in this environment")}
	}

	var obj js.Value
	err := jsExceptionToGoError(func() {
		obj = ctor.New(jsConfiguration(cfg))
	})
	if err != nil {
		return nil, &rtcerr.NegotiationError{Op: "create peer connection", Err: err}
	}

	return &jsConn{object: obj, log: lg, closed: newOneshot()}, nil
}

func jsConfiguration(cfg Config) M {
	servers := S{}
	for _, s := range cfg.Servers {
		urls := S{}
		for _, u := range s.URLs {
			urls = append(urls, u)
		}
		server := M{"urls": urls}
		if s.Username != "" {
			server["username"] = s.Username
		}
		if s.Credential != "" {
			server["credential"] = s.Credential
		}
		if s.CredentialType != "" {
			server["credentialType"] = s.CredentialType
		}
		servers = append(servers, server)
	}

	out := M{"iceServers": servers}
	if cfg.Policy != "" {
		out["iceTransportPolicy"] = cfg.Policy
	}
	return out
}

type jsConn struct {
	object js.Value
	log    zerolog.Logger
	closed *oneshot
}

func (pc *jsConn) CreateOffer(ctx context.Context) (Description, error) {
	desc, err := pc.await(ctx, pc.object.Call("createOffer"))
	if err != nil {
		return Description{}, &rtcerr.NegotiationError{Op: "create offer", Err: err}
	}
	return Description{Kind: desc.Get("type").String(), SDP: desc.Get("sdp").String()}, nil
}

func (pc *jsConn) CreateAnswer(ctx context.Context) (Description, error) {
	desc, err := pc.await(ctx, pc.object.Call("createAnswer"))
	if err != nil {
		return Description{}, &rtcerr.NegotiationError{Op: "create answer", Err: err}
	}
	return Description{Kind: desc.Get("type").String(), SDP: desc.Get("sdp").String()}, nil
}

func (pc *jsConn) SetLocalDescription(ctx context.Context, desc Description) error {
	_, err := pc.await(ctx, pc.object.Call("setLocalDescription", jsDescription(desc)))
	if err != nil {
		return &rtcerr.NegotiationError{Op: "set local description", Err: err}
	}
	return nil
}

func (pc *jsConn) SetRemoteDescription(ctx context.Context, desc Description) error {
	_, err := pc.await(ctx, pc.object.Call("setRemoteDescription", jsDescription(desc)))
	if err != nil {
		return &rtcerr.NegotiationError{Op: "set remote description", Err: err}
	}
	return nil
}

func jsDescription(desc Description) M {
	out := M{"type": desc.Kind}
	// A rollback carries no SDP.
	if desc.SDP != "" {
		out["sdp"] = desc.SDP
	}
	return out
}

func (pc *jsConn) AddCandidate(cand Candidate) error {
	if pc.closed.done() {
		return nil
	}
	obj := M{"candidate": cand.Candidate}
	if cand.SDPMid != nil {
		obj["sdpMid"] = *cand.SDPMid
	}
	if cand.SDPMLineIndex != nil {
		obj["sdpMLineIndex"] = int(*cand.SDPMLineIndex)
	}

	var promise js.Value
	err := jsExceptionToGoError(func() {
		promise = pc.object.Call("addIceCandidate", obj)
	})
	if err == nil {
		_, err = pc.await(context.Background(), promise)
	}
	if err != nil {
		if pc.closed.done() {
			return nil
		}
		return &rtcerr.IceError{Err: err}
	}
	return nil
}

func (pc *jsConn) CreateChannel(label string, opts ChannelOptions) (Channel, error) {
	options := M{}
	if opts.Ordered != nil {
		options["ordered"] = *opts.Ordered
	}
	if opts.MaxRetransmits != nil {
		options["maxRetransmits"] = int(*opts.MaxRetransmits)
	}
	if opts.MaxPacketLifeTime != nil {
		options["maxPacketLifeTime"] = int(*opts.MaxPacketLifeTime)
	}
	if opts.Negotiated {
		options["negotiated"] = true
		if opts.ID != nil {
			options["id"] = int(*opts.ID)
		}
	}

	var obj js.Value
	err := jsExceptionToGoError(func() {
		obj = pc.object.Call("createDataChannel", label, options)
	})
	if err != nil {
		return nil, &rtcerr.NegotiationError{Op: "create data channel", Err: err}
	}
	return newJSChannel(obj), nil
}

func (pc *jsConn) Stats(ctx context.Context) (map[string]interface{}, error) {
	report, err := pc.await(ctx, pc.object.Call("getStats"))
	if err != nil {
		return nil, &rtcerr.NegotiationError{Op: "get stats", Err: err}
	}

	out := make(map[string]interface{})
	stringify := js.Global().Get("JSON")
	cb := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		value, id := args[0], args[1].String()
		text := stringify.Call("stringify", value).String()
		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return nil
		}
		for k, v := range fields {
			out[id+"."+k] = v
		}
		return nil
	})
	defer cb.Release()
	report.Call("forEach", cb)
	return out, nil
}

func (pc *jsConn) Close() error {
	var err error
	pc.closed.do(func() {
		err = jsExceptionToGoError(func() {
			pc.object.Call("close")
		})
	})
	return err
}

func (pc *jsConn) OnSignalingStateChange(handler func(string)) {
	pc.object.Set("onsignalingstatechange", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler(pc.object.Get("signalingState").String())
		return nil
	}))
}

func (pc *jsConn) OnICEConnectionStateChange(handler func(string)) {
	pc.object.Set("oniceconnectionstatechange", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler(pc.object.Get("iceConnectionState").String())
		return nil
	}))
}

func (pc *jsConn) OnConnectionStateChange(handler func(string)) {
	pc.object.Set("onconnectionstatechange", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler(pc.object.Get("connectionState").String())
		return nil
	}))
}

func (pc *jsConn) OnCandidate(handler func(Candidate, bool)) {
	pc.object.Set("onicecandidate", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		candidate := args[0].Get("candidate")
		if !candidate.Truthy() {
			handler(Candidate{}, true)
			return nil
		}
		cand := Candidate{Candidate: candidate.Get("candidate").String()}
		if mid := candidate.Get("sdpMid"); mid.Truthy() {
			s := mid.String()
			cand.SDPMid = &s
		}
		if idx := candidate.Get("sdpMLineIndex"); idx.Type() == js.TypeNumber {
			n := uint16(idx.Int())
			cand.SDPMLineIndex = &n
		}
		handler(cand, false)
		return nil
	}))
}

func (pc *jsConn) OnChannel(handler func(Channel)) {
	pc.object.Set("ondatachannel", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler(newJSChannel(args[0].Get("channel")))
		return nil
	}))
}

func newJSChannel(obj js.Value) *jsChannel {
	obj.Set("binaryType", "arraybuffer")
	return &jsChannel{object: obj}
}

type jsChannel struct {
	object js.Value
}

func (dc *jsChannel) Label() string {
	return dc.object.Get("label").String()
}

func (dc *jsChannel) ID() (uint16, bool) {
	if id := dc.object.Get("id"); id.Type() == js.TypeNumber {
		return uint16(id.Int()), true
	}
	return 0, false
}

func (dc *jsChannel) ReadyState() string {
	return dc.object.Get("readyState").String()
}

func (dc *jsChannel) Ordered() bool {
	return dc.object.Get("ordered").Bool()
}

func (dc *jsChannel) MaxRetransmits() (uint16, bool) {
	if n := dc.object.Get("maxRetransmits"); n.Type() == js.TypeNumber {
		return uint16(n.Int()), true
	}
	return 0, false
}

func (dc *jsChannel) MaxPacketLifeTime() (uint16, bool) {
	if n := dc.object.Get("maxPacketLifeTime"); n.Type() == js.TypeNumber {
		return uint16(n.Int()), true
	}
	return 0, false
}

func (dc *jsChannel) Send(data []byte) error {
	err := jsExceptionToGoError(func() {
		dst := js.Global().Get("Uint8Array").New(len(data))
		js.CopyBytesToJS(dst, data)
		dc.object.Call("send", dst)
	})
	if err != nil {
		return &rtcerr.ChannelClosedError{Label: dc.Label()}
	}
	return nil
}

func (dc *jsChannel) SendText(text string) error {
	err := jsExceptionToGoError(func() {
		dc.object.Call("send", text)
	})
	if err != nil {
		return &rtcerr.ChannelClosedError{Label: dc.Label()}
	}
	return nil
}

func (dc *jsChannel) BufferedAmount() uint64 {
	return uint64(dc.object.Get("bufferedAmount").Int())
}

func (dc *jsChannel) SetBufferedAmountLowThreshold(n uint64) {
	dc.object.Set("bufferedAmountLowThreshold", int(n))
}

func (dc *jsChannel) Close() error {
	return jsExceptionToGoError(func() {
		dc.object.Call("close")
	})
}

func (dc *jsChannel) OnOpen(handler func()) {
	dc.object.Set("onopen", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler()
		return nil
	}))
}

func (dc *jsChannel) OnClose(handler func()) {
	dc.object.Set("onclose", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler()
		return nil
	}))
}

func (dc *jsChannel) OnMessage(handler func([]byte, bool)) {
	dc.object.Set("onmessage", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		data := args[0].Get("data")
		if data.Type() == js.TypeString {
			handler([]byte(data.String()), true)
			return nil
		}
		src := js.Global().Get("Uint8Array").New(data)
		dst := make([]byte, src.Length())
		js.CopyBytesToGo(dst, src)
		handler(dst, false)
		return nil
	}))
}

func (dc *jsChannel) OnBufferedAmountLow(handler func()) {
	dc.object.Set("onbufferedamountlow", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		handler()
		return nil
	}))
}

func (dc *jsChannel) OnError(handler func(error)) {
	dc.object.Set("onerror", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := "data channel error"
		if e := args[0].Get("error"); e.Truthy() {
			if m := e.Get("message"); m.Type() == js.TypeString {
				msg = m.String()
			}
		}
		handler(errors.New(msg))
		return nil
	}))
}

// await resolves a JS promise from an ordinary goroutine. The then/catch
// callbacks only perform non-blocking sends so the event loop is never
// stalled.
func (pc *jsConn) await(ctx context.Context, promise js.Value) (js.Value, error) {
	resultc := make(chan js.Value, 1)
	errc := make(chan error, 1)
	promise.
		Call("then", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			v := js.Undefined()
			if len(args) > 0 {
				v = args[0]
			}
			select {
			case resultc <- v:
			default:
			}
			return nil
		})).
		Call("catch", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			select {
			case errc <- jsError(args[0]):
			default:
			}
			return nil
		}))

	select {
	case v := <-resultc:
		return v, nil
	case err := <-errc:
		return js.Undefined(), err
	case <-ctx.Done():
		return js.Undefined(), ctx.Err()
	case <-pc.closed.c:
		return js.Undefined(), rtcerr.ErrConnectionClosed
	}
}

func jsError(v js.Value) error {
	if v.Type() == js.TypeObject {
		name, msg := v.Get("name"), v.Get("message")
		if name.Type() == js.TypeString && msg.Type() == js.TypeString {
			return fmt.Errorf("%s: %s", name.String(), msg.String())
		}
	}
	return errors.New(v.String())
}

func jsExceptionToGoError(f func()) error {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if v, ok := r.(js.Error); ok {
					err = jsError(v.Value)
				} else {
					err = fmt.Errorf("%v", r)
				}
			}
		}()
		f()
	}()
	return err
}

type oneshot struct {
	c    chan struct{}
	once sync.Once
}

func newOneshot() *oneshot {
	return &oneshot{c: make(chan struct{})}
}

func (o *oneshot) do(f func()) {
	o.once.Do(func() {
		f()
		close(o.c)
	})
}

func (o *oneshot) done() bool {
	select {
	case <-o.c:
		return true
	default:
		return false
	}
}
