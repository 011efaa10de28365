package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// spec.md §3/§8's invariant: at most one Worker per mailbox id.
func TestRegistryRejectsSecondHandleForLiveMailbox(t *testing.T) {
	r := newRegistry()
	done := make(chan struct{})

	first := &workerHandle{done: done}
	assert.True(t, r.register("mbox-1", first))

	second := &workerHandle{done: make(chan struct{})}
	assert.False(t, r.register("mbox-1", second), "must not replace a live handle")

	got, ok := r.get("mbox-1")
	assert.True(t, ok)
	assert.Same(t, first, got)
}

// Once a handle's done channel is closed, a new registration is allowed —
// this is how the registry reaps a "thread not alive" mailbox without
// polling (spec.md §4.1.2).
func TestRegistryAllowsReplacingADeadHandle(t *testing.T) {
	r := newRegistry()

	dead := &workerHandle{done: make(chan struct{})}
	assert.True(t, r.register("mbox-1", dead))
	close(dead.done)
	assert.False(t, dead.alive())

	replacement := &workerHandle{done: make(chan struct{})}
	assert.True(t, r.register("mbox-1", replacement))

	got, ok := r.get("mbox-1")
	assert.True(t, ok)
	assert.Same(t, replacement, got)
}

func TestRegistryReleaseRemovesHandle(t *testing.T) {
	r := newRegistry()
	h := &workerHandle{done: make(chan struct{})}
	r.register("mbox-1", h)

	r.release("mbox-1")

	_, ok := r.get("mbox-1")
	assert.False(t, ok)
}

func TestRegistrySnapshotAndAllReturnIndependentCopies(t *testing.T) {
	r := newRegistry()
	r.register("mbox-1", &workerHandle{done: make(chan struct{})})
	r.register("mbox-2", &workerHandle{done: make(chan struct{})})

	snap := r.snapshot()
	assert.Len(t, snap, 2)

	r.release("mbox-1")
	assert.Len(t, snap, 2, "snapshot must not reflect later mutation")
	assert.Len(t, r.all(), 1)
}
