package eas

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hkdb/aerion-eas/internal/database"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
	"github.com/hkdb/aerion-eas/internal/wbxml"
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

// recordingCallbacks captures every callback invocation for assertions.
type recordingCallbacks struct {
	mu             sync.Mutex
	mailboxList    []StatusCode
	mailboxSync    []StatusCode
	manualSyncs    []string
	kicks          []string
}

func (c *recordingCallbacks) AttachmentStatus(string, string, StatusCode, int) {}
func (c *recordingCallbacks) SendStatus(string, StatusCode)                   {}
func (c *recordingCallbacks) MailboxListStatus(accountID string, status StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailboxList = append(c.mailboxList, status)
}
func (c *recordingCallbacks) MailboxSyncStatus(mailboxID string, status StatusCode, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mailboxSync = append(c.mailboxSync, status)
}
func (c *recordingCallbacks) StartManualSync(mailboxID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualSyncs = append(c.manualSyncs, mailboxID+":"+reason)
}
func (c *recordingCallbacks) Kick(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kicks = append(c.kicks, reason)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	composer := NewURLComposer(server.Listener.Addr().String(), "user", "pass", "dev1", false)
	mgr := transport.New(transport.DefaultConfig())
	t.Cleanup(func() { mgr.Shutdown() })
	return NewClient(mgr, composer, "12.0")
}

// TestWorkerCollectionLoopSingleSyncTurn covers spec.md §4.2.6/§4.2.7 for a
// non-account mailbox: one Sync turn with MoreAvailable=false ends in DONE
// and persists the returned sync key.
func TestWorkerCollectionLoopSingleSyncTurn(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Cmd") != "Sync" {
			http.Error(w, "unexpected command", http.StatusBadRequest)
			return
		}
		resp := wbxml.NewWriter(wbxml.PageAirSync)
		resp.StartTag(wbxml.TagSync, true)
		resp.Element(wbxml.TagSyncKey, "1")
		resp.EndTag()
		w.Header().Set("Content-Type", "application/vnd.ms-sync.wbxml")
		w.Write(resp.Bytes())
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	mailbox := &store.Mailbox{AccountID: account.ID, ServerID: "5", DisplayName: "Inbox", Type: store.MailboxInbox, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(mailbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, mailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	exit := worker.Run(t.Context())
	require.Equal(t, store.ExitDone, exit)

	got, err := mailboxes.Get(mailbox.ID)
	require.NoError(t, err)
	require.Equal(t, "1", got.SyncKey)

	require.Contains(t, cb.mailboxSync, StatusSuccess)
}

// TestWorkerFolderSyncLoginFailure covers spec.md §8 scenario 6: a 401 on
// FolderSync must surface LOGIN_FAILURE and the LoginFailed callback.
func TestWorkerFolderSyncLoginFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	accountMailbox := &store.Mailbox{AccountID: account.ID, ServerID: "0", DisplayName: "Account", Type: store.MailboxAccount, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(accountMailbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, accountMailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	exit := worker.Run(t.Context())
	require.Equal(t, store.ExitLoginFailure, exit)
	require.Contains(t, cb.mailboxList, StatusLoginFailed)
}

// TestWorkerSyncTurnPropagatesIOError covers spec.md §4.2.6/§7: a non-200
// Sync response must surface IO_ERROR (not be collapsed into DONE) so the
// orchestrator's SyncError hold can engage.
func TestWorkerSyncTurnPropagatesIOError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	mailbox := &store.Mailbox{AccountID: account.ID, ServerID: "5", DisplayName: "Inbox", Type: store.MailboxInbox, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(mailbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, mailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	exit := worker.Run(t.Context())
	require.Equal(t, store.ExitIOError, exit)
	require.Contains(t, cb.mailboxSync, StatusConnectionError)
}

// TestWorkerSyncTurnCountsChangedElements covers the Sync response's
// <Add>/<Change>/<Delete> elements feeding RecordSyncResult's change count,
// which SpuriousChangeDefense.Observe later reads back via sync_status.
func TestWorkerSyncTurnCountsChangedElements(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := wbxml.NewWriter(wbxml.PageAirSync)
		resp.StartTag(wbxml.TagSync, true)
		resp.Element(wbxml.TagSyncKey, "1")
		resp.StartTag(wbxml.TagCommands, true)
		resp.EmptyElement(wbxml.TagAdd)
		resp.EmptyElement(wbxml.TagChange)
		resp.EndTag()
		resp.EndTag()
		w.Header().Set("Content-Type", "application/vnd.ms-sync.wbxml")
		w.Write(resp.Bytes())
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	mailbox := &store.Mailbox{AccountID: account.ID, ServerID: "5", DisplayName: "Inbox", Type: store.MailboxInbox, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(mailbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, mailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	exit := worker.Run(t.Context())
	require.Equal(t, store.ExitDone, exit)

	got, err := mailboxes.Get(mailbox.ID)
	require.NoError(t, err)
	_, _, changeCount, ok := store.DecodeSyncStatus(got.SyncStatus)
	require.True(t, ok)
	require.Equal(t, 2, changeCount)
}

// TestWorkerPingLoopExitsOnIOError covers spec.md §4.2.3 step 4/§7: an empty
// Ping response body must exit the worker as IO_ERROR instead of looping
// forever on an ioBackoff sleep.
func TestWorkerPingLoopExitsOnIOError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("Cmd") {
		case "FolderSync":
			resp := wbxml.NewWriter(wbxml.PageFolder)
			resp.StartTag(wbxml.TagFolderSync, true)
			resp.Element(wbxml.TagStatus, "1")
			resp.Element(wbxml.TagFolderSyncKey, "1")
			resp.EndTag()
			w.Write(resp.Bytes())
		default:
			w.Header().Set("Content-Type", "application/vnd.ms-sync.wbxml")
			// Empty body: spec.md §4.2.3 step 4 raises IO_ERROR.
		}
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	accountMailbox := &store.Mailbox{AccountID: account.ID, ServerID: "0", DisplayName: "Account", Type: store.MailboxAccount, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(accountMailbox))
	inbox := &store.Mailbox{AccountID: account.ID, ServerID: "5", DisplayName: "Inbox", Type: store.MailboxInbox, SyncInterval: store.IntervalPush, SyncKey: "abc"}
	require.NoError(t, mailboxes.Create(inbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, accountMailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	exit := worker.Run(t.Context())
	require.Equal(t, store.ExitIOError, exit)
}

// TestWorkerStopDuringPingLoopExitsPromptly covers spec.md §4.2.8: Stop()
// must unblock a worker parked in its Ping loop.
func TestWorkerStopDuringPingLoopExitsPromptly(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("Cmd") {
		case "FolderSync":
			resp := wbxml.NewWriter(wbxml.PageFolder)
			resp.StartTag(wbxml.TagFolderSync, true)
			resp.Element(wbxml.TagStatus, "1")
			resp.Element(wbxml.TagFolderSyncKey, "1")
			resp.EndTag()
			w.Write(resp.Bytes())
		default:
			<-r.Context().Done() // Ping blocks until the worker cancels it
		}
	})
	client := newTestClient(t, handler)

	db := openTestDB(t)
	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	account := &store.Account{DisplayName: "Work", EmailAddress: "a@b.com", Host: "h", Username: "user", ProtocolVersion: "12.0"}
	require.NoError(t, accounts.Create(account))

	accountMailbox := &store.Mailbox{AccountID: account.ID, ServerID: "0", DisplayName: "Account", Type: store.MailboxAccount, SyncInterval: store.IntervalPush, SyncKey: "0"}
	require.NoError(t, mailboxes.Create(accountMailbox))
	inbox := &store.Mailbox{AccountID: account.ID, ServerID: "5", DisplayName: "Inbox", Type: store.MailboxInbox, SyncInterval: store.IntervalPush, SyncKey: "abc"}
	require.NoError(t, mailboxes.Create(inbox))

	cb := &recordingCallbacks{}
	worker := NewWorker(account, accountMailbox, client, Stores{Accounts: accounts, Mailboxes: mailboxes}, cb, t.TempDir())

	done := make(chan store.ExitStatus, 1)
	go func() { done <- worker.Run(t.Context()) }()

	worker.Stop()
	exit := <-done
	require.Equal(t, store.ExitException, exit)
}
