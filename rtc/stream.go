package rtc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rtcbridge/rtcbridge/rtcerr"
)

// maxStreamChunk bounds a single outbound message so writes stay under the
// message size every engine accepts.
const maxStreamChunk = 16 << 10

// A Stream adapts a DataChannel to net.Conn so ordinary stream tooling
// (io.Copy, yamux, ...) can run over it. The channel should be ordered and
// reliable; Writes block until the channel is open. Deadlines apply to
// calls made after they are set.
type Stream struct {
	dc *DataChannel

	readbuffer []byte

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

// NewStream wraps dc. Closing the stream closes the channel, not the
// parent connection.
func NewStream(dc *DataChannel) *Stream {
	return &Stream{dc: dc}
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(s.readbuffer) == 0 {
		ctx, cancel := s.deadlineContext(func() time.Time {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.readDeadline
		})
		msg, err := s.dc.Recv(ctx)
		cancel()
		if err != nil {
			return 0, streamError(err, io.EOF)
		}
		s.readbuffer = msg.Data
	}
	n := copy(p, s.readbuffer)
	s.readbuffer = s.readbuffer[n:]
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	ctx, cancel := s.deadlineContext(func() time.Time {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.writeDeadline
	})
	defer cancel()

	select {
	case <-s.dc.openCond.C:
	case <-s.dc.closeCond.C:
		return 0, io.ErrClosedPipe
	case <-ctx.Done():
		return 0, os.ErrDeadlineExceeded
	}

	var total int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxStreamChunk {
			chunk = p[:maxStreamChunk]
		}
		if err := s.dc.SendContext(ctx, chunk); err != nil {
			return total, streamError(err, io.ErrClosedPipe)
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (s *Stream) Close() error {
	return s.dc.Close()
}

func (s *Stream) LocalAddr() net.Addr {
	return streamAddr{label: s.dc.Label()}
}

func (s *Stream) RemoteAddr() net.Addr {
	return streamAddr{label: s.dc.Label()}
}

func (s *Stream) SetDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDeadline, s.writeDeadline = t, t
	s.mu.Unlock()
	return nil
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDeadline = t
	s.mu.Unlock()
	return nil
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.writeDeadline = t
	s.mu.Unlock()
	return nil
}

func (s *Stream) deadlineContext(deadline func() time.Time) (context.Context, context.CancelFunc) {
	if d := deadline(); !d.IsZero() {
		return context.WithDeadline(context.Background(), d)
	}
	return context.Background(), func() {}
}

// streamError maps channel errors onto the errors stream callers expect:
// a closed channel becomes onClosed (io.EOF for reads, io.ErrClosedPipe
// for writes) and a missed deadline becomes os.ErrDeadlineExceeded.
func streamError(err error, onClosed error) error {
	var closedErr *rtcerr.ChannelClosedError
	if errors.As(err, &closedErr) {
		return onClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return os.ErrDeadlineExceeded
	}
	return err
}

type streamAddr struct {
	label string
}

func (streamAddr) Network() string {
	return "webrtc"
}

func (a streamAddr) String() string {
	return "datachannel:" + a.label
}
