// services/arcade.go
package services

import "sync"

// arcadeBinding holds the single authorized orchestrator address for a
// gated ledger. The owner can rebind it at runtime while request handlers
// read it concurrently, so access goes through the lock.
type arcadeBinding struct {
	mu      sync.RWMutex
	address string
}

func newArcadeBinding(address string) *arcadeBinding {
	return &arcadeBinding{address: address}
}

func (b *arcadeBinding) get() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.address
}

func (b *arcadeBinding) set(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.address = address
}
