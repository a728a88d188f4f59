package rtc

// SDPType is the type field of a SessionDescription.
type SDPType string

const (
	// SDPTypeOffer starts an exchange.
	SDPTypeOffer SDPType = "offer"
	// SDPTypePranswer is a provisional answer; the exchange stays pending.
	SDPTypePranswer SDPType = "pranswer"
	// SDPTypeAnswer completes an exchange.
	SDPTypeAnswer SDPType = "answer"
	// SDPTypeRollback discards the pending local or remote offer.
	SDPTypeRollback SDPType = "rollback"
)

// SignalingState tracks the offer/answer exchange of a PeerConnection.
type SignalingState int

const (
	// SignalingStateStable means no exchange is in progress.
	SignalingStateStable SignalingState = iota + 1
	// SignalingStateHaveLocalOffer means a local offer is pending.
	SignalingStateHaveLocalOffer
	// SignalingStateHaveRemoteOffer means a remote offer is pending.
	SignalingStateHaveRemoteOffer
	// SignalingStateHaveLocalPranswer means a local provisional answer was applied.
	SignalingStateHaveLocalPranswer
	// SignalingStateHaveRemotePranswer means a remote provisional answer was applied.
	SignalingStateHaveRemotePranswer
	// SignalingStateClosed means the connection was closed.
	SignalingStateClosed
)

func newSignalingState(raw string) SignalingState {
	switch raw {
	case "stable":
		return SignalingStateStable
	case "have-local-offer":
		return SignalingStateHaveLocalOffer
	case "have-remote-offer":
		return SignalingStateHaveRemoteOffer
	case "have-local-pranswer":
		return SignalingStateHaveLocalPranswer
	case "have-remote-pranswer":
		return SignalingStateHaveRemotePranswer
	case "closed":
		return SignalingStateClosed
	default:
		return SignalingState(0)
	}
}

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState tracks candidate-pair connectivity checks.
type ICEConnectionState int

const (
	// ICEConnectionStateNew means checks have not started.
	ICEConnectionStateNew ICEConnectionState = iota + 1
	// ICEConnectionStateChecking means candidate pairs are being probed.
	ICEConnectionStateChecking
	// ICEConnectionStateConnected means a usable pair was found.
	ICEConnectionStateConnected
	// ICEConnectionStateCompleted means checking finished on all pairs.
	ICEConnectionStateCompleted
	// ICEConnectionStateDisconnected means connectivity was lost, possibly transiently.
	ICEConnectionStateDisconnected
	// ICEConnectionStateFailed means no pair could be established.
	ICEConnectionStateFailed
	// ICEConnectionStateClosed means the transport was shut down.
	ICEConnectionStateClosed
)

func newICEConnectionState(raw string) ICEConnectionState {
	switch raw {
	case "new":
		return ICEConnectionStateNew
	case "checking":
		return ICEConnectionStateChecking
	case "connected":
		return ICEConnectionStateConnected
	case "completed":
		return ICEConnectionStateCompleted
	case "disconnected":
		return ICEConnectionStateDisconnected
	case "failed":
		return ICEConnectionStateFailed
	case "closed":
		return ICEConnectionStateClosed
	default:
		return ICEConnectionState(0)
	}
}

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState is the aggregate lifecycle state of a PeerConnection.
// It only moves forward: once Closed or Failed is reported the connection
// never announces an earlier state again.
type ConnectionState int

const (
	// ConnectionStateNew means no transport activity yet.
	ConnectionStateNew ConnectionState = iota + 1
	// ConnectionStateConnecting means transports are being established.
	ConnectionStateConnecting
	// ConnectionStateConnected means media and data can flow.
	ConnectionStateConnected
	// ConnectionStateDisconnected means connectivity degraded, recovery is possible.
	ConnectionStateDisconnected
	// ConnectionStateFailed means the connection is irrecoverable.
	ConnectionStateFailed
	// ConnectionStateClosed means the connection was torn down locally.
	ConnectionStateClosed
)

func newConnectionState(raw string) ConnectionState {
	switch raw {
	case "new":
		return ConnectionStateNew
	case "connecting":
		return ConnectionStateConnecting
	case "connected":
		return ConnectionStateConnected
	case "disconnected":
		return ConnectionStateDisconnected
	case "failed":
		return ConnectionStateFailed
	case "closed":
		return ConnectionStateClosed
	default:
		return ConnectionState(0)
	}
}

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// terminal reports whether the state admits no further transitions except
// Failed to Closed.
func (s ConnectionState) terminal() bool {
	return s == ConnectionStateFailed || s == ConnectionStateClosed
}

// DataChannelState is the lifecycle state of a DataChannel. Transitions are
// strictly monotonic: Connecting, Open, Closing, Closed.
type DataChannelState int

const (
	// DataChannelStateConnecting means transport setup is underway.
	DataChannelStateConnecting DataChannelState = iota + 1
	// DataChannelStateOpen means the channel can send and receive.
	DataChannelStateOpen
	// DataChannelStateClosing means shutdown has begun; no new sends.
	DataChannelStateClosing
	// DataChannelStateClosed means the channel is fully torn down.
	DataChannelStateClosed
)

func newDataChannelState(raw string) DataChannelState {
	switch raw {
	case "connecting":
		return DataChannelStateConnecting
	case "open":
		return DataChannelStateOpen
	case "closing":
		return DataChannelStateClosing
	case "closed":
		return DataChannelStateClosed
	default:
		return DataChannelState(0)
	}
}

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
