package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCreateOffer(t *testing.T) {
	assert.NoError(t, checkCreateOffer(SignalingStateStable))
	assert.Error(t, checkCreateOffer(SignalingStateHaveLocalOffer))
	assert.Error(t, checkCreateOffer(SignalingStateHaveRemoteOffer))
	assert.Error(t, checkCreateOffer(SignalingStateHaveLocalPranswer))
	assert.Error(t, checkCreateOffer(SignalingStateClosed))
}

func TestCheckCreateAnswer(t *testing.T) {
	assert.NoError(t, checkCreateAnswer(SignalingStateHaveRemoteOffer))
	assert.NoError(t, checkCreateAnswer(SignalingStateHaveLocalPranswer))
	assert.Error(t, checkCreateAnswer(SignalingStateStable))
	assert.Error(t, checkCreateAnswer(SignalingStateHaveLocalOffer))
}

func TestNextLocalState(t *testing.T) {
	for _, tc := range []struct {
		from SignalingState
		kind SDPType
		to   SignalingState
		ok   bool
	}{
		{SignalingStateStable, SDPTypeOffer, SignalingStateHaveLocalOffer, true},
		{SignalingStateHaveLocalOffer, SDPTypeOffer, 0, false},
		{SignalingStateHaveRemoteOffer, SDPTypeAnswer, SignalingStateStable, true},
		{SignalingStateHaveRemoteOffer, SDPTypePranswer, SignalingStateHaveLocalPranswer, true},
		{SignalingStateHaveLocalPranswer, SDPTypeAnswer, SignalingStateStable, true},
		{SignalingStateStable, SDPTypeAnswer, 0, false},
		{SignalingStateHaveLocalOffer, SDPTypeRollback, SignalingStateStable, true},
		{SignalingStateHaveLocalPranswer, SDPTypeRollback, SignalingStateStable, true},
		{SignalingStateStable, SDPTypeRollback, 0, false},
		{SignalingStateHaveRemoteOffer, SDPTypeRollback, 0, false},
		{SignalingStateStable, SDPType("bogus"), 0, false},
	} {
		to, err := nextLocalState(tc.from, tc.kind)
		if tc.ok {
			assert.NoError(t, err, "%s + local %s", tc.from, tc.kind)
			assert.Equal(t, tc.to, to, "%s + local %s", tc.from, tc.kind)
		} else {
			assert.Error(t, err, "%s + local %s", tc.from, tc.kind)
		}
	}
}

func TestNextRemoteState(t *testing.T) {
	for _, tc := range []struct {
		from SignalingState
		kind SDPType
		to   SignalingState
		ok   bool
	}{
		{SignalingStateStable, SDPTypeOffer, SignalingStateHaveRemoteOffer, true},
		{SignalingStateHaveRemoteOffer, SDPTypeOffer, 0, false},
		{SignalingStateHaveLocalOffer, SDPTypeAnswer, SignalingStateStable, true},
		{SignalingStateHaveLocalOffer, SDPTypePranswer, SignalingStateHaveRemotePranswer, true},
		{SignalingStateHaveRemotePranswer, SDPTypeAnswer, SignalingStateStable, true},
		{SignalingStateStable, SDPTypeAnswer, 0, false},
		{SignalingStateHaveRemoteOffer, SDPTypeRollback, SignalingStateStable, true},
		{SignalingStateHaveRemotePranswer, SDPTypeRollback, SignalingStateStable, true},
		{SignalingStateStable, SDPTypeRollback, 0, false},
		{SignalingStateHaveLocalOffer, SDPTypeRollback, 0, false},
	} {
		to, err := nextRemoteState(tc.from, tc.kind)
		if tc.ok {
			assert.NoError(t, err, "%s + remote %s", tc.from, tc.kind)
			assert.Equal(t, tc.to, to, "%s + remote %s", tc.from, tc.kind)
		} else {
			assert.Error(t, err, "%s + remote %s", tc.from, tc.kind)
		}
	}
}

func TestNextConnectionState(t *testing.T) {
	next, ok := nextConnectionState(ConnectionStateNew, ConnectionStateConnecting)
	assert.True(t, ok)
	assert.Equal(t, ConnectionStateConnecting, next)

	// recovery from disconnected is an ordinary forward transition
	next, ok = nextConnectionState(ConnectionStateDisconnected, ConnectionStateConnected)
	assert.True(t, ok)
	assert.Equal(t, ConnectionStateConnected, next)

	// duplicates are dropped
	_, ok = nextConnectionState(ConnectionStateConnected, ConnectionStateConnected)
	assert.False(t, ok)

	// terminal states are sticky
	_, ok = nextConnectionState(ConnectionStateFailed, ConnectionStateConnected)
	assert.False(t, ok)
	_, ok = nextConnectionState(ConnectionStateClosed, ConnectionStateConnecting)
	assert.False(t, ok)
}
