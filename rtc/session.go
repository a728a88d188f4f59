package rtc

// SessionDescription is one side of an offer/answer exchange. The SDP text
// is treated as opaque: it is never parsed or rewritten here, only handed
// between the engine and the signaling transport.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidateInit is a transport candidate as received from signaling.
// Candidates are cumulative hints, not idempotent state: they are applied
// in the order received, never reordered or deduplicated.
type ICECandidateInit struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Message is one inbound data channel payload.
type Message struct {
	Data []byte
	// IsString records whether the peer sent the payload as text.
	IsString bool
}
