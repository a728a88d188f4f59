package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtcbridge/rtcbridge/rtcerr"
)

func TestSendRequiresOpen(t *testing.T) {
	fe := newFakeEngine()
	installFakeEngines(t, fe)

	pc, err := New(Config{})
	require.NoError(t, err)
	defer pc.Close()

	dc, err := pc.CreateDataChannel("data", nil)
	require.NoError(t, err)
	assert.Equal(t, DataChannelStateConnecting, dc.ReadyState())

	var closedErr *rtcerr.ChannelClosedError
	err = dc.Send([]byte("too early"))
	require.ErrorAs(t, err, &closedErr)
	assert.Equal(t, "data", closedErr.Label)

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	fe.emitConnState("connecting")
	fe.channelByLabel("data").emitOpen()
	waitFor(t, opened, "open")

	assert.NoError(t, dc.Send([]byte("now it flows")))

	require.NoError(t, dc.Close())
	err = dc.Send([]byte("too late"))
	assert.ErrorAs(t, err, &closedErr)
}

func TestSendFailsFastAboveHighWaterMark(t *testing.T) {
	_, dcA, _, _ := connectedPair(t, Config{})

	fake := dcA.eng.(*fakeChannel)
	fake.setBuffered(DefaultHighWaterMark)

	err := dcA.Send([]byte("pressure"))
	var bpErr *rtcerr.BackpressureError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, "data", bpErr.Label)
	assert.Equal(t, uint64(DefaultHighWaterMark), bpErr.BufferedAmount)
	assert.Equal(t, uint64(DefaultHighWaterMark), bpErr.HighWaterMark)

	fake.setBuffered(0)
	assert.NoError(t, dcA.Send([]byte("drained")))
}

func TestSendContextBlocksUntilDrained(t *testing.T) {
	_, dcA, _, _ := connectedPair(t, Config{})

	fake := dcA.eng.(*fakeChannel)
	fake.setBuffered(DefaultHighWaterMark)

	result := make(chan error, 1)
	go func() {
		result <- dcA.SendContext(context.Background(), []byte("blocked"))
	}()

	fake.setBuffered(0)
	fake.emitLow()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not resume after the buffer drained")
	}
}

func TestSendContextHonorsContext(t *testing.T) {
	_, dcA, _, _ := connectedPair(t, Config{})

	fake := dcA.eng.(*fakeChannel)
	fake.setBuffered(DefaultHighWaterMark)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := dcA.SendContext(ctx, []byte("never"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendContextUnblocksOnClose(t *testing.T) {
	_, dcA, _, _ := connectedPair(t, Config{})

	fake := dcA.eng.(*fakeChannel)
	fake.setBuffered(DefaultHighWaterMark)

	result := make(chan error, 1)
	go func() {
		result <- dcA.SendContext(context.Background(), []byte("blocked"))
	}()

	require.NoError(t, dcA.Close())

	select {
	case err := <-result:
		var closedErr *rtcerr.ChannelClosedError
		assert.ErrorAs(t, err, &closedErr)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not observe the close")
	}
}

func TestRecvDeliversInOrder(t *testing.T) {
	_, dcA, _, dcB := connectedPair(t, Config{})

	require.NoError(t, dcA.Send([]byte("one")))
	require.NoError(t, dcA.SendText("two"))
	require.NoError(t, dcA.Send([]byte("three")))

	ctx := context.Background()
	msg, err := dcB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", string(msg.Data))
	assert.False(t, msg.IsString)

	msg, err = dcB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", string(msg.Data))
	assert.True(t, msg.IsString)

	msg, err = dcB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "three", string(msg.Data))
}

func TestRecvDrainsAfterClose(t *testing.T) {
	_, dcA, _, dcB := connectedPair(t, Config{})

	require.NoError(t, dcA.Send([]byte("first")))
	require.NoError(t, dcA.Send([]byte("second")))

	// the close queues behind both messages on the receiver's inbox
	closed := make(chan struct{})
	dcB.OnClose(func() { close(closed) })
	require.NoError(t, dcA.Close())
	waitFor(t, closed, "remote close")

	ctx := context.Background()
	msg, err := dcB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg.Data))
	msg, err = dcB.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(msg.Data))

	_, err = dcB.Recv(ctx)
	var closedErr *rtcerr.ChannelClosedError
	assert.ErrorAs(t, err, &closedErr)
}

func TestRecvHonorsContext(t *testing.T) {
	_, _, _, dcB := connectedPair(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := dcB.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnMessageReplaysQueuedThenStreams(t *testing.T) {
	_, dcA, _, dcB := connectedPair(t, Config{})

	require.NoError(t, dcA.Send([]byte("queued-1")))
	require.NoError(t, dcA.Send([]byte("queued-2")))

	// make sure both messages are queued before the handler is installed
	deadline := time.Now().Add(5 * time.Second)
	for {
		dcB.recvq.Lock()
		n := len(dcB.recvq.queue)
		dcB.recvq.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("messages never queued")
		}
		time.Sleep(time.Millisecond)
	}

	var mu sync.Mutex
	var got []string
	third := make(chan struct{})
	dcB.OnMessage(func(msg Message) {
		mu.Lock()
		got = append(got, string(msg.Data))
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(third)
		}
	})

	require.NoError(t, dcA.Send([]byte("live-3")))

	waitFor(t, third, "handler delivery")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"queued-1", "queued-2", "live-3"}, got)
}

func TestPerChannelOrderWithInterleavedChannels(t *testing.T) {
	a, dcA1, b, dcB1 := connectedPair(t, Config{})

	accepted := make(chan *DataChannel, 1)
	b.OnDataChannel(func(dc *DataChannel) { accepted <- dc })

	dcA2, err := a.CreateDataChannel("data2", nil)
	require.NoError(t, err)

	var dcB2 *DataChannel
	select {
	case dcB2 = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for second channel")
	}

	openA2 := make(chan struct{})
	openB2 := make(chan struct{})
	dcA2.OnOpen(func() { close(openA2) })
	dcB2.OnOpen(func() { close(openB2) })
	dcA2.eng.(*fakeChannel).emitOpen()
	dcB2.eng.(*fakeChannel).emitOpen()
	waitFor(t, openA2, "second channel open")
	waitFor(t, openB2, "second remote open")

	require.NoError(t, dcA1.Send([]byte("a-1")))
	require.NoError(t, dcA2.Send([]byte("b-1")))
	require.NoError(t, dcA1.Send([]byte("a-2")))
	require.NoError(t, dcA2.Send([]byte("b-2")))

	ctx := context.Background()
	for i, want := range []string{"a-1", "a-2"} {
		msg, err := dcB1.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Data), "channel 1 message %d", i)
	}
	for i, want := range []string{"b-1", "b-2"} {
		msg, err := dcB2.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Data), "channel 2 message %d", i)
	}
}

func TestBoundedQueueNeverDrops(t *testing.T) {
	_, dcA, _, dcB := connectedPair(t, Config{InboundQueueLimit: 2})

	// four messages against a bound of two: delivery stalls, nothing drops
	for _, payload := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, dcA.Send([]byte(payload)))
	}

	ctx := context.Background()
	for _, want := range []string{"m1", "m2", "m3", "m4"} {
		msg, err := dcB.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Data))
	}
}

func TestCloseReleasesBlockedDelivery(t *testing.T) {
	_, dcA, b, _ := connectedPair(t, Config{InboundQueueLimit: 1})

	require.NoError(t, dcA.Send([]byte("m1")))
	require.NoError(t, dcA.Send([]byte("m2")))

	done := make(chan struct{})
	go func() {
		_ = b.Close()
		close(done)
	}()
	waitFor(t, done, "close with blocked delivery")
}

func TestChannelCloseIdempotent(t *testing.T) {
	_, dcA, _, _ := connectedPair(t, Config{})

	closed := make(chan struct{})
	dcA.OnClose(func() { close(closed) }) // a second invocation would panic

	require.NoError(t, dcA.Close())
	require.NoError(t, dcA.Close())
	waitFor(t, closed, "close callback")
	assert.Equal(t, DataChannelStateClosed, dcA.ReadyState())
}

func TestChannelProperties(t *testing.T) {
	fe := newFakeEngine()
	installFakeEngines(t, fe)

	pc, err := New(Config{})
	require.NoError(t, err)
	defer pc.Close()

	unordered := false
	retransmits := uint16(3)
	dc, err := pc.CreateDataChannel("props", &ChannelOptions{
		Ordered:        &unordered,
		MaxRetransmits: &retransmits,
	})
	require.NoError(t, err)

	assert.Equal(t, "props", dc.Label())
	assert.False(t, dc.Ordered())
	n, ok := dc.MaxRetransmits()
	require.True(t, ok)
	assert.Equal(t, uint16(3), n)
	_, ok = dc.MaxPacketLifeTime()
	assert.False(t, ok)
	_, ok = dc.ID()
	assert.False(t, ok) // unassigned until the engine negotiates one
}
