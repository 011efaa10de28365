package orchestrator

import (
	"testing"
	"time"

	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/stretchr/testify/assert"
)

// spec.md §4.1.4: first IO_ERROR holds for initialHoldDelay; each repeat
// doubles the hold, capped at maxHoldDelay.
func TestSyncErrorMapEscalatesHoldDelayOnRepeatedIOError(t *testing.T) {
	m := newSyncErrorMap()
	const mailboxID = "mbox-1"

	m.onExit(mailboxID, store.ExitIOError)
	_, held, releaseIn := m.status(mailboxID)
	assert.True(t, held)
	assert.Equal(t, initialHoldDelay, releaseIn)

	m.onExit(mailboxID, store.ExitIOError)
	_, held, releaseIn = m.status(mailboxID)
	assert.True(t, held)
	assert.Equal(t, 2*initialHoldDelay, releaseIn)

	m.onExit(mailboxID, store.ExitIOError)
	_, _, releaseIn = m.status(mailboxID)
	assert.Equal(t, 4*initialHoldDelay, releaseIn)

	// Keep escalating past the cap.
	for i := 0; i < 10; i++ {
		m.onExit(mailboxID, store.ExitIOError)
	}
	_, _, releaseIn = m.status(mailboxID)
	assert.Equal(t, maxHoldDelay, releaseIn)
}

// DONE clears a held mailbox's entry entirely (spec.md §4.1.4).
func TestSyncErrorMapClearsOnDone(t *testing.T) {
	m := newSyncErrorMap()
	const mailboxID = "mbox-1"

	m.onExit(mailboxID, store.ExitIOError)
	fatal, held, _ := m.status(mailboxID)
	assert.False(t, fatal)
	assert.True(t, held)

	m.onExit(mailboxID, store.ExitDone)
	fatal, held, _ = m.status(mailboxID)
	assert.False(t, fatal)
	assert.False(t, held)
}

// LOGIN_FAILURE/SECURITY_FAILURE/EXCEPTION are fatal and never held with a
// release time — startSync must not retry them automatically.
func TestSyncErrorMapMarksFatalExitsWithoutHold(t *testing.T) {
	for _, exit := range []store.ExitStatus{store.ExitLoginFailure, store.ExitSecurityFailure, store.ExitException} {
		m := newSyncErrorMap()
		m.onExit("mbox", exit)
		fatal, held, releaseIn := m.status("mbox")
		assert.True(t, fatal, "exit=%s", exit)
		assert.False(t, held, "exit=%s", exit)
		assert.Zero(t, releaseIn, "exit=%s", exit)
	}
}

// release(reason, ...) only clears entries matching both reason and, when
// given, the owning account.
func TestSyncErrorMapReleaseScopesByReasonAndAccount(t *testing.T) {
	m := newSyncErrorMap()
	m.onExit("mbox-a1", store.ExitIOError)
	m.onExit("mbox-a2", store.ExitIOError)
	m.onExit("mbox-b1", store.ExitLoginFailure)

	index := map[string]string{"mbox-a1": "acct-a", "mbox-a2": "acct-a", "mbox-b1": "acct-b"}

	m.release("IO", index, "acct-a")

	_, held, _ := m.status("mbox-a1")
	assert.False(t, held, "acct-a's IO hold should be released")
	_, held, _ = m.status("mbox-a2")
	assert.False(t, held)
	fatal, _, _ := m.status("mbox-b1")
	assert.True(t, fatal, "unrelated reason/account must survive release")
}

// clearAccount drops every entry (fatal or held) for an account regardless
// of reason, per spec.md §4.1 hostChanged.
func TestSyncErrorMapClearAccountIgnoresReason(t *testing.T) {
	m := newSyncErrorMap()
	m.onExit("mbox-a1", store.ExitIOError)
	m.onExit("mbox-a2", store.ExitLoginFailure)
	m.onExit("mbox-b1", store.ExitIOError)

	index := map[string]string{"mbox-a1": "acct-a", "mbox-a2": "acct-a", "mbox-b1": "acct-b"}
	m.clearAccount(index, "acct-a")

	fatal, held, _ := m.status("mbox-a1")
	assert.False(t, fatal)
	assert.False(t, held)
	fatal, _, _ = m.status("mbox-a2")
	assert.False(t, fatal)
	_, held, _ = m.status("mbox-b1")
	assert.True(t, held, "other account's hold must survive")
}

func TestSyncErrorMapUnknownMailboxIsNotHeld(t *testing.T) {
	m := newSyncErrorMap()
	fatal, held, releaseIn := m.status("nonexistent")
	assert.False(t, fatal)
	assert.False(t, held)
	assert.Equal(t, time.Duration(0), releaseIn)
}
