package orchestrator

import (
	"sync"
	"time"

	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/sony/gobreaker"
)

// Hold policy constants from spec.md §4.1.4.
const (
	initialHoldDelay = 15 * time.Second
	maxHoldDelay     = 4 * time.Minute
)

// syncError is one mailbox's entry in the orchestrator's SyncError map
// (spec.md §4.1.4). Fatal errors (SECURITY_FAILURE, LOGIN_FAILURE,
// EXCEPTION) are never auto-retried; IO_ERROR escalates a hold delay that
// doubles on repeat failure, capped at maxHoldDelay.
//
// The hold/release decision is delegated to a gobreaker.CircuitBreaker
// (sourced from webitel-im-delivery-service's dependency surface) rather
// than a hand-rolled timer comparison: Execute's closed/open/half-open
// state machine already expresses "deny until Timeout elapses, then allow
// exactly one probe" -- exactly checkMailboxes' "shrink nextWait to the
// release time, then clear the end-time but retain the error record"
// shape. Because spec.md's hold delay doubles on each failure rather than
// using gobreaker's fixed Settings.Timeout, the breaker is rebuilt with
// the escalated Timeout every time IO_ERROR repeats instead of reused
// stock; see DESIGN.md.
type syncError struct {
	mailboxID string
	reason    string
	fatal     bool
	holdDelay time.Duration
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

func newSyncErrorBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
}

// syncErrorMap is the orchestrator's per-mailbox error/hold table.
type syncErrorMap struct {
	mu      sync.Mutex
	entries map[string]*syncError
}

func newSyncErrorMap() *syncErrorMap {
	return &syncErrorMap{entries: make(map[string]*syncError)}
}

// onExit applies spec.md §4.1.4's table for one worker's completion.
func (m *syncErrorMap) onExit(mailboxID string, exit store.ExitStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch exit {
	case store.ExitDone:
		delete(m.entries, mailboxID)

	case store.ExitIOError:
		existing, ok := m.entries[mailboxID]
		if !ok {
			e := &syncError{mailboxID: mailboxID, reason: "IO", holdDelay: initialHoldDelay}
			e.breaker = newSyncErrorBreaker(mailboxID, e.holdDelay)
			m.entries[mailboxID] = e
			e.trip()
			return
		}
		existing.holdDelay *= 2
		if existing.holdDelay > maxHoldDelay {
			existing.holdDelay = maxHoldDelay
		}
		existing.breaker = newSyncErrorBreaker(mailboxID, existing.holdDelay)
		existing.trip()

	case store.ExitSecurityFailure, store.ExitLoginFailure, store.ExitException:
		m.entries[mailboxID] = &syncError{mailboxID: mailboxID, reason: string(exit), fatal: true}
	}
}

// trip forces the breaker into its Open state by recording one failure,
// since the state machine only opens in reaction to an Execute call.
func (e *syncError) trip() {
	_, _ = e.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, errHold
	})
}

var errHold = holdError{}

type holdError struct{}

func (holdError) Error() string { return "sync held" }

// status reports whether mailboxID is currently blocked from starting a
// new worker, and — if held — the mailbox's current hold delay (the full
// delay, not the time remaining until the hold releases).
// checkMailboxes uses this to decide "skip" vs. "shrink nextWait."
func (m *syncErrorMap) status(mailboxID string) (fatal, held bool, releaseIn time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[mailboxID]
	if !ok {
		return false, false, 0
	}
	if e.fatal {
		return true, false, 0
	}
	if e.breaker.State() == gobreaker.StateOpen {
		return false, true, e.holdDelay
	}
	// Half-open or closed: the hold has elapsed. Retain the record (spec.md
	// §4.1.4: "clear the end-time but retain the error record") by leaving
	// the entry in place; a subsequent IO_ERROR will escalate it further.
	return false, false, 0
}

// release removes entries matching reason, scoped to mailboxes owned by
// account (or all accounts if account == ""). Implements
// releaseSyncHolds(reason, account?) from spec.md §4.1.4.
func (m *syncErrorMap) release(reason string, mailboxAccount map[string]string, account string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		if e.reason != reason {
			continue
		}
		if account != "" && mailboxAccount[id] != account {
			continue
		}
		delete(m.entries, id)
	}
}

// clearAccount drops every entry for mailboxes belonging to account,
// regardless of reason (spec.md §4.1 hostChanged: "clear fatal flags and
// hold end-times for SyncErrors belonging to the account").
func (m *syncErrorMap) clearAccount(mailboxAccount map[string]string, account string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.entries {
		if mailboxAccount[id] == account {
			delete(m.entries, id)
		}
	}
}
