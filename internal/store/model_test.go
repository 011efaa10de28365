package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncStatusRoundTrip(t *testing.T) {
	cases := []struct {
		mtype       MailboxType
		exit        ExitStatus
		changeCount int
	}{
		{MailboxInbox, ExitDone, 0},
		{MailboxInbox, ExitDone, 7},
		{MailboxCalendar, ExitIOError, 3},
		{MailboxAccount, ExitException, 0},
	}

	for _, c := range cases {
		encoded := EncodeSyncStatus(c.mtype, c.exit, c.changeCount)
		typeChar, exitChar, count, ok := DecodeSyncStatus(encoded)
		assert.True(t, ok, "decode %q", encoded)
		assert.Equal(t, c.mtype.typeChar(), typeChar)
		assert.Equal(t, c.exit.exitChar(), exitChar)
		assert.Equal(t, c.changeCount, count)
	}
}

func TestDecodeSyncStatusRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "Si:0", "Xi:D:0", "Si;D:0", "Si:D;0", "Si:D:"} {
		_, _, _, ok := DecodeSyncStatus(s)
		assert.False(t, ok, "expected %q to be rejected", s)
	}
}

func TestMailboxPingEligible(t *testing.T) {
	m := &Mailbox{Type: MailboxInbox, SyncInterval: IntervalPush, SyncKey: "abc"}
	assert.True(t, m.PingEligible())

	m.SyncKey = "0"
	assert.False(t, m.PingEligible(), "never-synced mailbox must not be Ping-eligible")

	m.SyncKey = "abc"
	m.Type = MailboxAccount
	assert.False(t, m.PingEligible(), "account-mailbox must not be Ping-eligible")

	m.Type = MailboxInbox
	m.SyncInterval = IntervalPing
	assert.False(t, m.PingEligible())
}

func TestSyncIntervalIsScheduled(t *testing.T) {
	assert.False(t, IntervalNever.IsScheduled())
	assert.False(t, IntervalPush.IsScheduled())
	assert.False(t, IntervalPing.IsScheduled())
	assert.False(t, IntervalPushHold.IsScheduled())
	assert.True(t, SyncInterval(15).IsScheduled())
	assert.True(t, SyncInterval(MaxScheduledMinutes).IsScheduled())
	assert.False(t, SyncInterval(MaxScheduledMinutes+1).IsScheduled())
}
