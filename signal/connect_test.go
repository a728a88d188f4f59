package signal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
)

// TestConnect stands up two real connections in the same process and runs
// the whole handshake over the memory signaler.
func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real connection test in short mode")
	}

	s := Must(New("memory://" + uuid.NewString()))
	k1 := identity.New()
	k2 := identity.New()

	pc1, err := rtc.New(rtc.Config{})
	require.NoError(t, err)
	defer pc1.Close()
	pc2, err := rtc.New(rtc.Config{})
	require.NoError(t, err)
	defer pc2.Close()

	// role follows key order, so the channel is created on the offerer
	offererPC, answererPC := pc1, pc2
	offererKP, answererKP := k1, k2
	if k2.Public.String() < k1.Public.String() {
		offererPC, answererPC = pc2, pc1
		offererKP, answererKP = k2, k1
	}

	dcOut, err := offererPC.CreateDataChannel("connect-test", nil)
	require.NoError(t, err)

	remoteOpen := make(chan *rtc.DataChannel, 1)
	answererPC.OnDataChannel(func(dc *rtc.DataChannel) {
		dc.OnOpen(func() {
			remoteOpen <- dc
		})
	})

	localOpen := make(chan struct{})
	dcOut.OnOpen(func() { close(localOpen) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		return Connect(ctx, offererPC, s, offererKP, answererKP.Public)
	})
	eg.Go(func() error {
		return Connect(ctx, answererPC, s, answererKP, offererKP.Public)
	})
	require.NoError(t, eg.Wait())

	select {
	case <-localOpen:
	case <-ctx.Done():
		t.Fatal("timed out waiting for local channel to open")
	}

	var dcIn *rtc.DataChannel
	select {
	case dcIn = <-remoteOpen:
	case <-ctx.Done():
		t.Fatal("timed out waiting for remote channel to open")
	}

	require.NoError(t, dcOut.Send([]byte("ping")))
	msg, err := dcIn.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), msg.Data)

	require.NoError(t, dcIn.SendText("pong"))
	msg, err = dcOut.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg.Data))
	assert.True(t, msg.IsString)
}
