package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
)

// An Envelope is one signaling message between two peers: a session
// description, an ICE candidate, or both.
type Envelope struct {
	Description *rtc.SessionDescription `json:"description,omitempty"`
	Candidate   *rtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// address returns the mailbox key for messages flowing from one peer to
// another. Each direction gets its own key so replies never collide.
func address(to, from identity.Key) string {
	return to.String() + "/" + from.String()
}

// Send seals env for the peer and delivers it over s. Envelopes are
// encrypted and authenticated with the two peers' keys.
func Send(ctx context.Context, s Signaler, keypair identity.KeyPair, peerPublicKey identity.Key, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	sealed := keypair.Seal(peerPublicKey, raw)
	return s.Send(ctx, address(peerPublicKey, keypair.Public), base58.Encode(sealed))
}

// Recv receives and opens the next envelope from the peer.
func Recv(ctx context.Context, s Signaler, keypair identity.KeyPair, peerPublicKey identity.Key) (Envelope, error) {
	encoded, err := s.Recv(ctx, address(keypair.Public, peerPublicKey))
	if err != nil {
		return Envelope{}, err
	}
	sealed, err := base58.Decode(encoded)
	if err != nil {
		return Envelope{}, fmt.Errorf("malformed signaling message: %w", err)
	}
	raw, err := keypair.Open(peerPublicKey, sealed)
	if err != nil {
		return Envelope{}, fmt.Errorf("unreadable signaling message: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed signaling message: %w", err)
	}
	return env, nil
}
