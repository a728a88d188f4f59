// Package rtcerr defines the error taxonomy shared by both transport
// backends. Engine-specific failures are translated into these types at the
// adapter boundary so callers never see a raw backend error.
package rtcerr

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned by operations invoked after a connection
// reached its terminal closed state.
var ErrConnectionClosed = errors.New("connection is closed")

// A ConfigError reports invalid configuration, detected before any engine is
// touched. It is fatal to the construction attempt, never to the process.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// A NegotiationError reports a signaling-state violation or a malformed
// session description. The caller may retry in a correct state.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// An IceError reports a malformed ICE candidate. The candidate is dropped;
// the connection continues.
type IceError struct {
	Err error
}

func (e *IceError) Error() string { return fmt.Sprintf("ice: %v", e.Err) }

func (e *IceError) Unwrap() error { return e.Err }

// A ChannelClosedError reports a send or receive on a data channel that is
// not open.
type ChannelClosedError struct {
	Label string
}

func (e *ChannelClosedError) Error() string {
	return fmt.Sprintf("data channel %q is not open", e.Label)
}

// A BackpressureError reports that the engine's outbound buffer is above the
// configured high-water mark. The caller should retry after backing off, or
// use the blocking send variant.
type BackpressureError struct {
	Label          string
	BufferedAmount uint64
	HighWaterMark  uint64
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("data channel %q buffer is full: %d buffered, high-water mark %d",
		e.Label, e.BufferedAmount, e.HighWaterMark)
}

// A ThreadAffinityError reports an attempt to move a handle bound to a
// single execution context across goroutines. This is a programmer error and
// is not retried.
type ThreadAffinityError struct {
	Op string
}

func (e *ThreadAffinityError) Error() string {
	return fmt.Sprintf("%s: handle is confined to a single execution context on this backend", e.Op)
}

// A ConnectionFailedError reports the terminal failure of a connection. It
// is surfaced once; the connection cannot be reused and the caller must
// create a new one.
type ConnectionFailedError struct {
	Err error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return "connection failed"
}

func (e *ConnectionFailedError) Unwrap() error { return e.Err }
