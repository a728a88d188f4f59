// Package signal moves session descriptions and ICE candidates between two
// peers so they can establish a connection. It is a toolkit rather than a
// fixed protocol: a Signaler is any pipe of small strings addressed by key,
// and implementations are registered by URL scheme. Message payloads are
// sealed with the peers' identity keys, so the signaler itself never sees
// plaintext.
package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// A Signaler facilitates signaling. Send delivers data to whichever peer
// receives on key, blocking until the message is picked up or ctx is done;
// Recv blocks until a message arrives for key.
type Signaler interface {
	Send(ctx context.Context, key, data string) error
	Recv(ctx context.Context, key string) (data string, err error)
}

// A Factory returns a Signaler from an address.
type Factory = func(addr string) (Signaler, error)

var factories = struct {
	sync.Mutex
	m map[string]Factory
}{
	m: make(map[string]Factory),
}

// RegisterFactory registers a Factory for a URL scheme.
func RegisterFactory(scheme string, factory Factory) {
	factories.Lock()
	factories.m[scheme] = factory
	factories.Unlock()
}

// New returns a Signaler for the given address.
func New(addr string) (Signaler, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	factories.Lock()
	factory, ok := factories.m[u.Scheme]
	factories.Unlock()
	if !ok {
		return nil, fmt.Errorf("no signaler registered for %s", u.Scheme)
	}

	return factory(addr)
}

// Must panics if there's an error.
func Must(s Signaler, err error) Signaler {
	if err != nil {
		panic(err)
	}
	return s
}
