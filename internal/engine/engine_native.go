//go:build !js

package engine

import (
	"context"
	"encoding/json"
	"strings"

	webrtc "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// Shareable reports whether engine handles may cross goroutine boundaries.
// The native engine is fully thread-safe.
const Shareable = true

// New creates a peer connection backed by the native engine.
func New(cfg Config, lg zerolog.Logger) (Conn, error) {
	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(lg)}
	// Loopback candidates make same-machine peers and test environments
	// work without a reachable STUN server.
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(nativeConfiguration(cfg))
	if err != nil {
		return nil, &rtcerr.NegotiationError{Op: "create peer connection", Err: err}
	}
	return &nativeConn{native: pc}, nil
}

func nativeConfiguration(cfg Config) webrtc.Configuration {
	out := webrtc.Configuration{}
	for _, s := range cfg.Servers {
		server := webrtc.ICEServer{
			URLs:     s.URLs,
			Username: s.Username,
		}
		switch s.CredentialType {
		case "oauth":
			server.CredentialType = webrtc.ICECredentialTypeOauth
			server.Credential = webrtc.OAuthCredential{AccessToken: s.Credential}
		default:
			server.CredentialType = webrtc.ICECredentialTypePassword
			server.Credential = s.Credential
		}
		out.ICEServers = append(out.ICEServers, server)
	}
	if cfg.Policy == "relay" {
		out.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	} else {
		out.ICETransportPolicy = webrtc.ICETransportPolicyAll
	}
	return out
}

type nativeConn struct {
	native *webrtc.PeerConnection
}

func (pc *nativeConn) CreateOffer(ctx context.Context) (Description, error) {
	if err := ctx.Err(); err != nil {
		return Description{}, err
	}
	sdp, err := pc.native.CreateOffer(nil)
	if err != nil {
		return Description{}, &rtcerr.NegotiationError{Op: "create offer", Err: err}
	}
	return Description{Kind: KindOffer, SDP: sdp.SDP}, nil
}

func (pc *nativeConn) CreateAnswer(ctx context.Context) (Description, error) {
	if err := ctx.Err(); err != nil {
		return Description{}, err
	}
	sdp, err := pc.native.CreateAnswer(nil)
	if err != nil {
		return Description{}, &rtcerr.NegotiationError{Op: "create answer", Err: err}
	}
	return Description{Kind: KindAnswer, SDP: sdp.SDP}, nil
}

func (pc *nativeConn) SetLocalDescription(ctx context.Context, desc Description) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := pc.native.SetLocalDescription(nativeDescription(desc))
	if err != nil {
		return &rtcerr.NegotiationError{Op: "set local description", Err: err}
	}
	return nil
}

func (pc *nativeConn) SetRemoteDescription(ctx context.Context, desc Description) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := pc.native.SetRemoteDescription(nativeDescription(desc))
	if err != nil {
		return &rtcerr.NegotiationError{Op: "set remote description", Err: err}
	}
	return nil
}

func (pc *nativeConn) AddCandidate(cand Candidate) error {
	err := pc.native.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
	if err != nil {
		if pc.native.ConnectionState() == webrtc.PeerConnectionStateClosed {
			return nil
		}
		return &rtcerr.IceError{Err: err}
	}
	return nil
}

func (pc *nativeConn) CreateChannel(label string, opts ChannelOptions) (Channel, error) {
	init := &webrtc.DataChannelInit{
		Ordered:           opts.Ordered,
		MaxRetransmits:    opts.MaxRetransmits,
		MaxPacketLifeTime: opts.MaxPacketLifeTime,
		ID:                opts.ID,
	}
	if opts.Negotiated {
		negotiated := true
		init.Negotiated = &negotiated
	}
	dc, err := pc.native.CreateDataChannel(label, init)
	if err != nil {
		return nil, &rtcerr.NegotiationError{Op: "create data channel", Err: err}
	}
	return &nativeChannel{native: dc}, nil
}

func (pc *nativeConn) Stats(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := pc.native.GetStats()
	out := make(map[string]interface{}, len(report)*8)
	for id, stat := range report {
		bs, err := json.Marshal(stat)
		if err != nil {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(bs, &fields); err != nil {
			continue
		}
		for k, v := range fields {
			out[id+"."+k] = v
		}
	}
	return out, nil
}

func (pc *nativeConn) Close() error {
	return pc.native.Close()
}

func (pc *nativeConn) OnSignalingStateChange(handler func(string)) {
	pc.native.OnSignalingStateChange(func(state webrtc.SignalingState) {
		handler(strings.ToLower(state.String()))
	})
}

func (pc *nativeConn) OnICEConnectionStateChange(handler func(string)) {
	pc.native.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		handler(strings.ToLower(state.String()))
	})
}

func (pc *nativeConn) OnConnectionStateChange(handler func(string)) {
	pc.native.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		handler(strings.ToLower(state.String()))
	})
}

func (pc *nativeConn) OnCandidate(handler func(Candidate, bool)) {
	pc.native.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			handler(Candidate{}, true)
			return
		}
		init := cand.ToJSON()
		handler(Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}, false)
	})
}

func (pc *nativeConn) OnChannel(handler func(Channel)) {
	pc.native.OnDataChannel(func(dc *webrtc.DataChannel) {
		handler(&nativeChannel{native: dc})
	})
}

func nativeDescription(desc Description) webrtc.SessionDescription {
	out := webrtc.SessionDescription{SDP: desc.SDP}
	switch desc.Kind {
	case KindOffer:
		out.Type = webrtc.SDPTypeOffer
	case KindAnswer:
		out.Type = webrtc.SDPTypeAnswer
	case KindPranswer:
		out.Type = webrtc.SDPTypePranswer
	case KindRollback:
		out.Type = webrtc.SDPTypeRollback
	}
	return out
}

type nativeChannel struct {
	native *webrtc.DataChannel
}

func (dc *nativeChannel) Label() string {
	return dc.native.Label()
}

func (dc *nativeChannel) ID() (uint16, bool) {
	if id := dc.native.ID(); id != nil {
		return *id, true
	}
	return 0, false
}

func (dc *nativeChannel) ReadyState() string {
	return strings.ToLower(dc.native.ReadyState().String())
}

func (dc *nativeChannel) Ordered() bool {
	return dc.native.Ordered()
}

func (dc *nativeChannel) MaxRetransmits() (uint16, bool) {
	if n := dc.native.MaxRetransmits(); n != nil {
		return *n, true
	}
	return 0, false
}

func (dc *nativeChannel) MaxPacketLifeTime() (uint16, bool) {
	if n := dc.native.MaxPacketLifeTime(); n != nil {
		return *n, true
	}
	return 0, false
}

func (dc *nativeChannel) Send(data []byte) error {
	if err := dc.native.Send(data); err != nil {
		return &rtcerr.ChannelClosedError{Label: dc.native.Label()}
	}
	return nil
}

func (dc *nativeChannel) SendText(text string) error {
	if err := dc.native.SendText(text); err != nil {
		return &rtcerr.ChannelClosedError{Label: dc.native.Label()}
	}
	return nil
}

func (dc *nativeChannel) BufferedAmount() uint64 {
	return dc.native.BufferedAmount()
}

func (dc *nativeChannel) SetBufferedAmountLowThreshold(n uint64) {
	dc.native.SetBufferedAmountLowThreshold(n)
}

func (dc *nativeChannel) Close() error {
	return dc.native.Close()
}

func (dc *nativeChannel) OnOpen(handler func()) {
	dc.native.OnOpen(handler)
}

func (dc *nativeChannel) OnClose(handler func()) {
	dc.native.OnClose(handler)
}

func (dc *nativeChannel) OnMessage(handler func([]byte, bool)) {
	dc.native.OnMessage(func(msg webrtc.DataChannelMessage) {
		handler(msg.Data, msg.IsString)
	})
}

func (dc *nativeChannel) OnBufferedAmountLow(handler func()) {
	dc.native.OnBufferedAmountLow(handler)
}

func (dc *nativeChannel) OnError(handler func(error)) {
	dc.native.OnError(handler)
}
