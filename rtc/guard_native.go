//go:build !js

package rtc

import "sync"

// shareable reports whether connections built by this backend may be handed
// to other goroutines. The native engine runs its own worker threads, so
// shared access is expected and guarded by a real mutex.
const shareable = true

// guard serializes access to connection and channel state.
type guard struct {
	sync.Mutex
}
