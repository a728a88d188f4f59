// Package engine defines the narrow contract both RTC backends implement:
// the native engine built on pion and the browser engine reached through
// syscall/js. The surrounding packages are backend-ignorant; everything they
// need from an engine is expressed here.
package engine

import "context"

// Description kinds, as they appear on the wire.
const (
	KindOffer    = "offer"
	KindPranswer = "pranswer"
	KindAnswer   = "answer"
	KindRollback = "rollback"
)

// A Description is an opaque session description. The SDP text is passed
// through verbatim; it is never parsed or rewritten.
type Description struct {
	Kind string
	SDP  string
}

// A Candidate is a single ICE candidate in wire form. SDPMid and
// SDPMLineIndex are optional per engine semantics.
type Candidate struct {
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// A Server is one ICE server entry. Validation happens before the engine is
// constructed; the engine may assume well-formed values.
type Server struct {
	URLs           []string
	Username       string
	Credential     string
	CredentialType string // "password" or "oauth"
}

// Config carries the subset of configuration an engine needs.
type Config struct {
	Servers []Server
	Policy  string // "all" or "relay"
}

// ChannelOptions mirror the engine-level data channel settings, fixed at
// creation time.
type ChannelOptions struct {
	Ordered           *bool
	MaxRetransmits    *uint16
	MaxPacketLifeTime *uint16
	Negotiated        bool
	ID                *uint16
}

// A Conn is one engine-owned peer connection.
//
// Event handlers are invoked from the engine's delivery context and must not
// block; they are expected to hand the event off immediately. Handlers for
// the same Conn are invoked in emission order.
type Conn interface {
	CreateOffer(ctx context.Context) (Description, error)
	CreateAnswer(ctx context.Context) (Description, error)
	SetLocalDescription(ctx context.Context, desc Description) error
	SetRemoteDescription(ctx context.Context, desc Description) error

	// AddCandidate applies a remote candidate. Malformed candidates fail
	// with an IceError; candidates arriving after close are a silent no-op.
	AddCandidate(cand Candidate) error

	CreateChannel(label string, opts ChannelOptions) (Channel, error)

	// Stats returns a flat snapshot of engine-reported statistics keyed
	// "<reportID>.<field>". The shape is backend-dependent.
	Stats(ctx context.Context) (map[string]interface{}, error)

	Close() error

	OnSignalingStateChange(func(state string))
	OnICEConnectionStateChange(func(state string))
	OnConnectionStateChange(func(state string))
	// OnCandidate delivers locally gathered candidates. done reports the end
	// of gathering; the candidate is zero in that case.
	OnCandidate(func(cand Candidate, done bool))
	OnChannel(func(Channel))
}

// A Channel is one engine-owned data channel.
type Channel interface {
	Label() string
	ID() (uint16, bool)
	ReadyState() string
	Ordered() bool
	MaxRetransmits() (uint16, bool)
	MaxPacketLifeTime() (uint16, bool)

	Send(data []byte) error
	SendText(text string) error

	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(n uint64)

	Close() error

	OnOpen(func())
	OnClose(func())
	OnMessage(func(data []byte, isString bool))
	OnBufferedAmountLow(func())
	OnError(func(err error))
}
