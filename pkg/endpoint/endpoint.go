// Package endpoint maintains the bidirectional mapping between a
// transport endpoint and the 32-bit client key it has been assigned,
// so the receiver loop can resolve an inbound packet's source to a
// session and the sender loop can resolve a session's output packets
// back to a wire address.
package endpoint

import (
	"sync"

	"github.com/xrce-agent/agent/pkg/transport"
)

// Table is a mutex-guarded bidirectional endpoint<->client-key map.
// Safe for concurrent use by the receiver, processor and sender loops.
type Table struct {
	mu    sync.RWMutex
	byEp  map[transport.Endpoint]uint32
	byKey map[uint32]transport.Endpoint
}

func NewTable() *Table {
	return &Table{
		byEp:  make(map[transport.Endpoint]uint32),
		byKey: make(map[uint32]transport.Endpoint),
	}
}

// Bind associates ep with clientKey, replacing any prior association
// for either side.
func (t *Table) Bind(ep transport.Endpoint, clientKey uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if oldEp, ok := t.byKey[clientKey]; ok {
		delete(t.byEp, oldEp)
	}
	if oldKey, ok := t.byEp[ep]; ok {
		delete(t.byKey, oldKey)
	}
	t.byEp[ep] = clientKey
	t.byKey[clientKey] = ep
}

// Unbind removes clientKey and its associated endpoint, if any.
func (t *Table) Unbind(clientKey uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ep, ok := t.byKey[clientKey]; ok {
		delete(t.byEp, ep)
		delete(t.byKey, clientKey)
	}
}

// ClientKey resolves an endpoint to its bound client key.
func (t *Table) ClientKey(ep transport.Endpoint) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.byEp[ep]
	return key, ok
}

// Endpoint resolves a client key to its bound endpoint.
func (t *Table) Endpoint(clientKey uint32) (transport.Endpoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep, ok := t.byKey[clientKey]
	return ep, ok
}

// Len returns the number of bound client keys.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}
