package orchestrator

import (
	"testing"
	"time"

	"github.com/hkdb/aerion-eas/internal/database"
	"github.com/hkdb/aerion-eas/internal/platform"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampAlarmBoundsToMinAndMax(t *testing.T) {
	assert.Equal(t, minAlarmWait, clampAlarm(0))
	assert.Equal(t, minAlarmWait, clampAlarm(time.Millisecond))
	assert.Equal(t, maxAlarmWait, clampAlarm(time.Hour))

	mid := 5 * time.Minute
	assert.Equal(t, mid, clampAlarm(mid))
}

func TestScheduledDueNeverSyncedIsImmediatelyDue(t *testing.T) {
	o := &Orchestrator{}
	m := &store.Mailbox{SyncInterval: 30}

	due, wait := o.scheduledDue(m)
	assert.True(t, due)
	assert.Zero(t, wait)
}

func TestScheduledDueReportsRemainingWaitWhenNotYetDue(t *testing.T) {
	o := &Orchestrator{}
	last := time.Now().Add(-10 * time.Minute)
	m := &store.Mailbox{SyncInterval: 30, LastSyncAt: &last}

	due, wait := o.scheduledDue(m)
	assert.False(t, due)
	assert.InDelta(t, 20*time.Minute, wait, float64(time.Second))
}

func TestScheduledDueFiresOnceIntervalElapsed(t *testing.T) {
	o := &Orchestrator{}
	last := time.Now().Add(-45 * time.Minute)
	m := &store.Mailbox{SyncInterval: 30, LastSyncAt: &last}

	due, wait := o.scheduledDue(m)
	assert.True(t, due)
	assert.Zero(t, wait)
}

// TestCheckMailboxesDefersScheduledSyncOnLowBattery covers the power-monitor
// gate added to checkMailboxes: a scheduled-interval mailbox must not start
// a worker while the battery is low, but must still report a bounded wait
// so the loop rechecks later instead of going idle forever.
func TestCheckMailboxesDefersScheduledSyncOnLowBattery(t *testing.T) {
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user"}
	require.NoError(t, accounts.Create(account))

	last := time.Now().Add(-2 * time.Hour)
	mailbox := &store.Mailbox{
		AccountID: account.ID, ServerID: "5", DisplayName: "Inbox",
		Type: store.MailboxInbox, SyncInterval: 30, SyncKey: "1", LastSyncAt: &last,
	}
	require.NoError(t, mailboxes.Create(mailbox))

	o := New(Options{Accounts: accounts, Mailboxes: mailboxes, BackgroundData: true})
	o.accountsByID[account.ID] = account
	o.conn.onPowerChanged(platform.PowerInfo{State: platform.PowerStateLowBattery, BatteryPercentage: 5})

	result := o.checkMailboxes()
	assert.Equal(t, "deferred, low battery", result.reason)
	assert.Equal(t, maxAlarmWait, result.nextWait)

	_, ok := o.registry.get(mailbox.ID)
	assert.False(t, ok, "no worker should start while the battery is low")
}

func TestOutboxHasSendableFollowsNeverSyncedFlag(t *testing.T) {
	o := &Orchestrator{}

	neverSynced := &store.Mailbox{Type: store.MailboxOutbox, SyncKey: "0"}
	assert.False(t, o.outboxHasSendable(neverSynced))

	hasSynced := &store.Mailbox{Type: store.MailboxOutbox, SyncKey: "17"}
	assert.True(t, o.outboxHasSendable(hasSynced))
}
