package eas

import (
	"testing"

	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/stretchr/testify/assert"
)

// Scenario 4 from spec.md §8: server reports changes in mailbox X twice in
// a row, both reads show change-count 0; on the second detection, back off.
func TestSpuriousChangeDefenseScenario4(t *testing.T) {
	d := NewSpuriousChangeDefense()

	backoff := d.Observe("X", store.IntervalPush, 0)
	assert.False(t, backoff, "first spurious report must not trigger back-off")

	backoff = d.Observe("X", store.IntervalPush, 0)
	assert.True(t, backoff, "second consecutive spurious report must trigger back-off")
}

func TestSpuriousChangeDefenseClearsOnRealChange(t *testing.T) {
	d := NewSpuriousChangeDefense()

	d.Observe("X", store.IntervalPush, 0)
	backoff := d.Observe("X", store.IntervalPush, 3) // real change in between
	assert.False(t, backoff)

	backoff = d.Observe("X", store.IntervalPush, 0)
	assert.False(t, backoff, "counter must have reset after the real change")
}

func TestSpuriousChangeDefenseIgnoresNonPushableMailboxes(t *testing.T) {
	d := NewSpuriousChangeDefense()
	assert.False(t, d.Observe("X", store.IntervalNever, 0))
	assert.False(t, d.Observe("X", store.IntervalNever, 0))
}

func TestBackoffIntervalInboxVsPIM(t *testing.T) {
	assert.Equal(t, store.SyncInterval(5), BackoffInterval(store.MailboxInbox))
	assert.Equal(t, store.SyncInterval(30), BackoffInterval(store.MailboxCalendar))
	assert.Equal(t, store.SyncInterval(30), BackoffInterval(store.MailboxContacts))
}
