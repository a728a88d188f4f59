package signal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
)

// Connect drives pc through a full offer/answer and candidate exchange with
// a peer over s, blocking until the connection is established, fails, or
// ctx is done. Both peers call it: the peer with the lexicographically
// smaller public key makes the offer, so the two sides need no prior
// agreement on roles.
//
// The offerer must create at least one data channel before calling Connect
// so the offer carries a transport to negotiate. Connect owns pc's
// ICE-candidate and connection-state callbacks and clears them on return.
func Connect(ctx context.Context, pc *rtc.PeerConnection, s Signaler, keypair identity.KeyPair, peerPublicKey identity.Key) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer pc.OnICECandidate(nil)
	defer pc.OnConnectionStateChange(nil)

	settled := make(chan rtc.ConnectionState, 1)
	pc.OnConnectionStateChange(func(state rtc.ConnectionState) {
		switch state {
		case rtc.ConnectionStateConnected, rtc.ConnectionStateFailed, rtc.ConnectionStateClosed:
			select {
			case settled <- state:
			default:
			}
		}
	})
	pc.OnICECandidate(func(cand rtc.ICECandidateInit) {
		// sends run concurrently so gathering is never blocked on the
		// signaler; the receiving side reorders safely
		go func() {
			if err := Send(ctx, s, keypair, peerPublicKey, Envelope{Candidate: &cand}); err != nil {
				log.Debug().Err(err).Msg("[signal] dropping local candidate")
			}
		}()
	})

	offerer := keypair.Public.String() < peerPublicKey.String()
	log.Debug().Str("peer", peerPublicKey.String()).Bool("offerer", offerer).
		Msg("[signal] connecting")

	exchangeErr := make(chan error, 1)
	go func() {
		if err := exchange(ctx, pc, s, keypair, peerPublicKey, offerer); err != nil && ctx.Err() == nil {
			exchangeErr <- err
		}
	}()

	select {
	case state := <-settled:
		if state != rtc.ConnectionStateConnected {
			return fmt.Errorf("connection %s during signaling", state)
		}
		return nil
	case err := <-exchangeErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exchange runs the description handshake and then keeps applying inbound
// candidates until ctx ends.
func exchange(ctx context.Context, pc *rtc.PeerConnection, s Signaler, keypair identity.KeyPair, peerPublicKey identity.Key, offerer bool) error {
	if offerer {
		offer, err := pc.CreateOffer(ctx)
		if err != nil {
			return fmt.Errorf("create offer: %w", err)
		}
		if err := pc.SetLocalDescription(ctx, offer); err != nil {
			return fmt.Errorf("set local offer: %w", err)
		}
		if err := Send(ctx, s, keypair, peerPublicKey, Envelope{Description: &offer}); err != nil {
			return fmt.Errorf("send offer: %w", err)
		}
	}

	for {
		env, err := Recv(ctx, s, keypair, peerPublicKey)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive envelope: %w", err)
		}

		if env.Description != nil {
			if err := pc.SetRemoteDescription(ctx, *env.Description); err != nil {
				return fmt.Errorf("set remote description: %w", err)
			}
			if !offerer {
				answer, err := pc.CreateAnswer(ctx)
				if err != nil {
					return fmt.Errorf("create answer: %w", err)
				}
				if err := pc.SetLocalDescription(ctx, answer); err != nil {
					return fmt.Errorf("set local answer: %w", err)
				}
				if err := Send(ctx, s, keypair, peerPublicKey, Envelope{Description: &answer}); err != nil {
					return fmt.Errorf("send answer: %w", err)
				}
			}
		}
		if env.Candidate != nil {
			if err := pc.AddICECandidate(*env.Candidate); err != nil {
				log.Warn().Err(err).Msg("[signal] remote candidate rejected")
			}
		}
	}
}
