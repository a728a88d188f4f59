package signal

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

func init() {
	RegisterFactory("memory", func(addr string) (Signaler, error) {
		return newMemorySignaler(addr[len("memory://"):]), nil
	})
}

// Mailboxes are process-global so any two memory signalers with the same
// prefix reach each other; the prefix keeps concurrent tests isolated.
var memoryMailboxes = struct {
	sync.Mutex
	m map[string]chan string
}{
	m: map[string]chan string{},
}

type memorySignaler struct {
	prefix string
}

func newMemorySignaler(prefix string) *memorySignaler {
	return &memorySignaler{prefix: prefix}
}

func (m *memorySignaler) Send(ctx context.Context, key, data string) error {
	log.Debug().Str("key", key).Msg("[memory] send")
	select {
	case m.mailbox(key) <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memorySignaler) Recv(ctx context.Context, key string) (string, error) {
	log.Debug().Str("key", key).Msg("[memory] recv")
	select {
	case data := <-m.mailbox(key):
		return data, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *memorySignaler) mailbox(key string) chan string {
	key = m.prefix + key
	memoryMailboxes.Lock()
	defer memoryMailboxes.Unlock()
	ch, ok := memoryMailboxes.m[key]
	if !ok {
		ch = make(chan string, 1)
		memoryMailboxes.m[key] = ch
	}
	return ch
}
