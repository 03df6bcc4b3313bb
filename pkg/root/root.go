// Package root implements the process-wide client registry (spec.md
// §3/§5): a read-mostly map from ClientKey to Session, guarded by a
// single mutex. Lookups release the lock before invoking session
// methods, since Session is independently thread-safe. Grounded on
// pkg/network/network.go's mutex-guarded `controllers map[uint8]*NodeProcessor`.
package root

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xrce-agent/agent/pkg/middleware"
	"github.com/xrce-agent/agent/pkg/object"
	"github.com/xrce-agent/agent/pkg/session"
)

// Root owns every live client session for one agent process.
type Root struct {
	mw       middleware.Middleware
	domainID uint16

	mu      sync.RWMutex
	clients map[uint32]*session.Session
}

// New creates an empty Root bound to mw for every client's object
// tree.
func New(mw middleware.Middleware, domainID uint16) *Root {
	return &Root{
		mw:       mw,
		domainID: domainID,
		clients:  make(map[uint32]*session.Session),
	}
}

// CreateClient returns the Session for clientKey, creating it (with a
// fresh object tree) if absent. A CREATE_CLIENT for an already-live
// key is idempotent: it returns the existing session unchanged, since
// spec.md has no "replace a live client" semantics.
func (r *Root) CreateClient(clientKey uint32, sessionID uint8, mtu int) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.clients[clientKey]; ok {
		return s
	}
	tree := object.NewTree(r.mw, r.domainID)
	s := session.New(clientKey, sessionID, mtu, tree)
	r.clients[clientKey] = s
	log.Infof("[ROOT] client created : key x%x session %d", clientKey, sessionID)
	return s
}

// DeleteClient removes clientKey's session, if present, and reports
// whether one existed.
func (r *Root) DeleteClient(clientKey uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[clientKey]; !ok {
		return false
	}
	delete(r.clients, clientKey)
	log.Infof("[ROOT] client deleted : key x%x", clientKey)
	return true
}

// Get resolves clientKey to its Session.
func (r *Root) Get(clientKey uint32) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.clients[clientKey]
	return s, ok
}

// Len returns the number of live clients.
func (r *Root) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Range calls f for every live session, stopping early if f returns
// false. Used by the heartbeat loop; f must not call back into
// CreateClient/DeleteClient.
func (r *Root) Range(f func(clientKey uint32, s *session.Session) bool) {
	r.mu.RLock()
	snapshot := make(map[uint32]*session.Session, len(r.clients))
	for k, v := range r.clients {
		snapshot[k] = v
	}
	r.mu.RUnlock()
	for k, v := range snapshot {
		if !f(k, v) {
			return
		}
	}
}
