package mlsqlite

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// bufferArena tracks Go buffers lent to the engine without copying.
//
// The engine's destructor only hands back the buffer address, so entries are
// keyed by address and the arena lives at process scope. Each entry keeps its
// buffer pinned until the engine lets go of it.
type bufferArena struct {
	mu      sync.Mutex
	entries []arenaEntry
}

type arenaEntry struct {
	addr    uintptr
	pinner  *runtime.Pinner
	release func()
}

var largeBuffers = &bufferArena{}

// register pins buf and records release for it. buf must not be empty.
func (a *bufferArena) register(buf []byte, release func()) uintptr {
	pinner := &runtime.Pinner{}
	pinner.Pin(&buf[0])
	addr := uintptrOf(buf)

	a.mu.Lock()
	a.entries = append(a.entries, arenaEntry{addr: addr, pinner: pinner, release: release})
	a.mu.Unlock()
	return addr
}

// release unpins one buffer registered at addr and runs its release function.
// Unknown addresses are logged and ignored.
func (a *bufferArena) release(addr uintptr) bool {
	a.mu.Lock()
	idx := -1
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].addr == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		Logger().Warn("release of unknown large buffer", zap.Uintptr("addr", addr))
		return false
	}
	entry := a.entries[idx]
	last := len(a.entries) - 1
	a.entries[idx] = a.entries[last]
	a.entries[last] = arenaEntry{}
	a.entries = a.entries[:last]
	a.mu.Unlock()

	entry.pinner.Unpin()
	if entry.release != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger().Error("recovered panic in buffer release", zap.Any("panic", r))
				}
			}()
			entry.release()
		}()
	}
	return true
}

func (a *bufferArena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
