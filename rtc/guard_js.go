//go:build js && wasm

package rtc

// shareable reports whether connections built by this backend may be handed
// to other goroutines. The browser engine lives in a single JS execution
// context, so handles are pinned to it.
const shareable = false

// guard serializes access to connection and channel state. Goroutines on
// this backend are multiplexed onto one execution context by the scheduler,
// and state sections never block, so no mutex is needed.
type guard struct{}

func (guard) Lock()   {}
func (guard) Unlock() {}
