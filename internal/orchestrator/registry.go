package orchestrator

import (
	"sync"

	"github.com/hkdb/aerion-eas/internal/eas"
)

// workerHandle pairs a running Worker with the goroutine-lifetime plumbing
// the registry needs to detect "thread not alive" (spec.md §4.1.2) without
// polling the goroutine itself.
type workerHandle struct {
	worker *eas.Worker
	done   chan struct{}
	cancel func()
}

func (h *workerHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// registry enforces spec.md §3/§8's invariant: at most one Worker per
// mailbox id. Grounded on the teacher's internal/imap/pool.go, whose
// connections map[string][]*PooledConnection is guarded the same way —
// "owner goroutine holds the only map" under a single mutex.
type registry struct {
	mu      sync.Mutex
	workers map[string]*workerHandle
}

func newRegistry() *registry {
	return &registry{workers: make(map[string]*workerHandle)}
}

// get returns the handle for mailboxID, if any.
func (r *registry) get(mailboxID string) (*workerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.workers[mailboxID]
	return h, ok
}

// register installs a new handle, returning false if one already exists
// (the invariant this type exists to enforce).
func (r *registry) register(mailboxID string, h *workerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workers[mailboxID]; ok && existing.alive() {
		return false
	}
	r.workers[mailboxID] = h
	return true
}

// release drops the handle for mailboxID unconditionally, used both for
// clean exits and for reaping dead threads (spec.md §4.1.2).
func (r *registry) release(mailboxID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, mailboxID)
}

// snapshot returns every live mailbox id -> handle pair.
func (r *registry) snapshot() map[string]*workerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*workerHandle, len(r.workers))
	for k, v := range r.workers {
		out[k] = v
	}
	return out
}

// all returns the live worker handles, for bulk Stop() calls
// (updateFolderList, hostChanged, shutdown).
func (r *registry) all() []*workerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*workerHandle, 0, len(r.workers))
	for _, h := range r.workers {
		out = append(out, h)
	}
	return out
}
