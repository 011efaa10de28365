package store

import (
	"testing"

	"github.com/hkdb/aerion-eas/internal/database"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountStoreCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountStore(db.DB)

	a := &Account{
		DisplayName:  "Work",
		EmailAddress: "user@example.com",
		Host:         "mail.example.com",
		Username:     "user",
	}
	require.NoError(t, accounts.Create(a))
	require.NotEmpty(t, a.ID)

	got, err := accounts.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, "0", got.SyncKey)
	require.Equal(t, IntervalPush, got.SyncIntervalPolicy)
	require.Equal(t, "3", got.SyncLookbackPolicy)

	require.NoError(t, accounts.UpdateProtocolVersion(a.ID, "12.0"))
	got, err = accounts.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, "12.0", got.ProtocolVersion)
}

func TestMailboxStorePingEligibilityFlow(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountStore(db.DB)
	mailboxes := NewMailboxStore(db.DB)

	a := &Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "u"}
	require.NoError(t, accounts.Create(a))

	inbox := &Mailbox{AccountID: a.ID, ServerID: "2", DisplayName: "Inbox", Type: MailboxInbox, SyncInterval: IntervalPush}
	require.NoError(t, mailboxes.Create(inbox))

	got, err := mailboxes.Get(inbox.ID)
	require.NoError(t, err)
	require.False(t, got.PingEligible(), "syncKey 0 must exclude mailbox from Ping")

	require.NoError(t, mailboxes.UpdateSyncKey(inbox.ID, "abc123"))
	got, err = mailboxes.Get(inbox.ID)
	require.NoError(t, err)
	require.True(t, got.PingEligible())

	require.NoError(t, mailboxes.HoldAllPushable(a.ID))
	got, err = mailboxes.Get(inbox.ID)
	require.NoError(t, err)
	require.Equal(t, IntervalPushHold, got.SyncInterval)

	require.NoError(t, mailboxes.FlipPushHoldToPush(a.ID))
	got, err = mailboxes.Get(inbox.ID)
	require.NoError(t, err)
	require.Equal(t, IntervalPush, got.SyncInterval)
}

func TestMailboxStoreListSyncableIncludesOutboxRegardlessOfInterval(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountStore(db.DB)
	mailboxes := NewMailboxStore(db.DB)

	a := &Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "u"}
	require.NoError(t, accounts.Create(a))

	outbox := &Mailbox{AccountID: a.ID, ServerID: "3", DisplayName: "Outbox", Type: MailboxOutbox, SyncInterval: IntervalNever}
	require.NoError(t, mailboxes.Create(outbox))

	list, err := mailboxes.ListSyncable()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, MailboxOutbox, list[0].Type)
}
