package rtc

import (
	"fmt"

	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// The signaling machine is backend-agnostic: the facade validates every
// caller operation against it before the engine is touched, so both
// backends reject the same misuse with the same errors. The engine still
// performs its own validation afterwards; anything it reports is translated
// by the adapter.

func checkCreateOffer(s SignalingState) error {
	switch s {
	case SignalingStateStable:
		return nil
	case SignalingStateHaveLocalOffer:
		return &rtcerr.NegotiationError{Op: "create offer",
			Err: fmt.Errorf("a local offer is already pending")}
	case SignalingStateHaveRemoteOffer:
		return &rtcerr.NegotiationError{Op: "create offer",
			Err: fmt.Errorf("a remote offer is pending; answer or roll back first")}
	default:
		return &rtcerr.NegotiationError{Op: "create offer",
			Err: fmt.Errorf("not allowed in signaling state %s", s)}
	}
}

func checkCreateAnswer(s SignalingState) error {
	switch s {
	case SignalingStateHaveRemoteOffer, SignalingStateHaveLocalPranswer:
		return nil
	default:
		return &rtcerr.NegotiationError{Op: "create answer",
			Err: fmt.Errorf("no pending remote offer in signaling state %s", s)}
	}
}

// nextLocalState returns the signaling state after applying a local
// description of the given type.
func nextLocalState(s SignalingState, kind SDPType) (SignalingState, error) {
	switch kind {
	case SDPTypeOffer:
		if s == SignalingStateStable {
			return SignalingStateHaveLocalOffer, nil
		}
		if s == SignalingStateHaveLocalOffer {
			return 0, negotiationErr("set local description",
				"a local offer is already pending")
		}
	case SDPTypeAnswer:
		if s == SignalingStateHaveRemoteOffer || s == SignalingStateHaveLocalPranswer {
			return SignalingStateStable, nil
		}
	case SDPTypePranswer:
		if s == SignalingStateHaveRemoteOffer || s == SignalingStateHaveLocalPranswer {
			return SignalingStateHaveLocalPranswer, nil
		}
	case SDPTypeRollback:
		if s == SignalingStateHaveLocalOffer || s == SignalingStateHaveLocalPranswer {
			return SignalingStateStable, nil
		}
		if s == SignalingStateStable {
			return 0, negotiationErr("set local description",
				"nothing to roll back in stable")
		}
	default:
		return 0, negotiationErr("set local description",
			fmt.Sprintf("unsupported description type %q", kind))
	}
	return 0, negotiationErr("set local description",
		fmt.Sprintf("%s is not allowed in signaling state %s", kind, s))
}

// nextRemoteState returns the signaling state after applying a remote
// description of the given type.
func nextRemoteState(s SignalingState, kind SDPType) (SignalingState, error) {
	switch kind {
	case SDPTypeOffer:
		if s == SignalingStateStable {
			return SignalingStateHaveRemoteOffer, nil
		}
		if s == SignalingStateHaveRemoteOffer {
			return 0, negotiationErr("set remote description",
				"a remote offer is already pending")
		}
	case SDPTypeAnswer:
		if s == SignalingStateHaveLocalOffer || s == SignalingStateHaveRemotePranswer {
			return SignalingStateStable, nil
		}
	case SDPTypePranswer:
		if s == SignalingStateHaveLocalOffer || s == SignalingStateHaveRemotePranswer {
			return SignalingStateHaveRemotePranswer, nil
		}
	case SDPTypeRollback:
		if s == SignalingStateHaveRemoteOffer || s == SignalingStateHaveRemotePranswer {
			return SignalingStateStable, nil
		}
		if s == SignalingStateStable {
			return 0, negotiationErr("set remote description",
				"nothing to roll back in stable")
		}
	default:
		return 0, negotiationErr("set remote description",
			fmt.Sprintf("unsupported description type %q", kind))
	}
	return 0, negotiationErr("set remote description",
		fmt.Sprintf("%s is not allowed in signaling state %s", kind, s))
}

func negotiationErr(op, msg string) error {
	return &rtcerr.NegotiationError{Op: op, Err: fmt.Errorf("%s", msg)}
}

// nextConnectionState decides whether an engine-announced connection state
// may be applied. Terminal states are sticky: once failed or closed is
// reported, later announcements are dropped. Recovery from disconnected
// back to connected is an ordinary forward transition here.
func nextConnectionState(cur, announced ConnectionState) (ConnectionState, bool) {
	if cur.terminal() || announced == ConnectionState(0) || announced == cur {
		return cur, false
	}
	return announced, true
}
